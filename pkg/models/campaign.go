// Package models defines the domain models for the campaign generator service
package models

import "time"

// FieldName identifies one of the three campaign fields the workflow must fill.
type FieldName string

const (
	FieldAudience FieldName = "audience"
	FieldOffer    FieldName = "offer"
	FieldDatetime FieldName = "datetime"
)

// FieldPriority lists every field in clarification priority order:
// audience criteria > offer/discount details > datetime specifics.
var FieldPriority = []FieldName{FieldAudience, FieldOffer, FieldDatetime}

// Priority returns the clarification rank of the field; lower asks first.
func (f FieldName) Priority() int {
	for i, name := range FieldPriority {
		if name == f {
			return i
		}
	}
	return len(FieldPriority)
}

// Phase marks how far a campaign session has progressed. Phases only move
// forward except for the bounded clarify loop, which may revisit itself.
type Phase string

const (
	PhaseExtract    Phase = "extract"
	PhaseClarify    Phase = "clarify"
	PhaseMatchLists Phase = "match_lists"
	PhaseSelectList Phase = "select_list"
	PhaseSummary    Phase = "summary"
	PhaseCompleted  Phase = "completed"
	PhaseCancelled  Phase = "cancelled"
	PhaseError      Phase = "error"
)

// FieldDefaults holds the best-effort values computed during extraction.
// They fill any field the user declines to clarify.
type FieldDefaults struct {
	Audience string `json:"audience"`
	Offer    string `json:"offer"`
	Schedule string `json:"schedule"`
}

// Value returns the default for a given field.
func (d FieldDefaults) Value(f FieldName) string {
	switch f {
	case FieldAudience:
		return d.Audience
	case FieldOffer:
		return d.Offer
	case FieldDatetime:
		return d.Schedule
	}
	return ""
}

// MatchedList is one existing smart list ranked against the audience
// description. Score is 0-100, higher is a better match.
type MatchedList struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Size   int    `json:"size"`
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// CampaignState is the complete workflow state for one session. Every node
// reads and writes this fixed schema; there is no dynamically grown mapping.
type CampaignState struct {
	Prompt   string `json:"prompt"`
	Audience string `json:"audience"`
	Offer    string `json:"offer"`
	Schedule string `json:"schedule"`

	Defaults FieldDefaults `json:"defaults"`

	// Missing is kept in priority order (audience > offer > datetime).
	Missing []FieldName `json:"missing"`

	// Clarifications maps each asked question to the answer applied.
	Clarifications map[string]string `json:"clarifications"`

	// QuestionsAsked never exceeds MaxClarifications across the session.
	QuestionsAsked int `json:"questions_asked"`

	// MatchedLists holds at most three lists sorted by descending score.
	MatchedLists []MatchedList `json:"matched_lists"`

	SelectedListID   string `json:"selected_list_id"`
	SelectedListName string `json:"selected_list_name"`
	CreateNewList    bool   `json:"create_new_list"`

	// SelectionAttempts counts unparseable replies in confirm_selection.
	SelectionAttempts int `json:"selection_attempts"`

	Phase Phase `json:"phase"`
}

// NewCampaignState returns the initial state for a raw user prompt.
func NewCampaignState(prompt string) *CampaignState {
	return &CampaignState{
		Prompt:         prompt,
		Clarifications: map[string]string{},
		Phase:          PhaseExtract,
	}
}

// Field returns the current value of the named field.
func (s *CampaignState) Field(f FieldName) string {
	switch f {
	case FieldAudience:
		return s.Audience
	case FieldOffer:
		return s.Offer
	case FieldDatetime:
		return s.Schedule
	}
	return ""
}

// SetField assigns the named field.
func (s *CampaignState) SetField(f FieldName, value string) {
	switch f {
	case FieldAudience:
		s.Audience = value
	case FieldOffer:
		s.Offer = value
	case FieldDatetime:
		s.Schedule = value
	}
}

// DropMissing removes the named field from the missing list.
func (s *CampaignState) DropMissing(f FieldName) {
	out := s.Missing[:0]
	for _, name := range s.Missing {
		if name != f {
			out = append(out, name)
		}
	}
	s.Missing = out
}

// Clone returns a deep copy so checkpoints never alias live state.
func (s *CampaignState) Clone() *CampaignState {
	if s == nil {
		return nil
	}
	dup := *s
	dup.Missing = append([]FieldName(nil), s.Missing...)
	dup.MatchedLists = append([]MatchedList(nil), s.MatchedLists...)
	dup.Clarifications = make(map[string]string, len(s.Clarifications))
	for q, a := range s.Clarifications {
		dup.Clarifications[q] = a
	}
	return &dup
}

// QuestionKind describes how the client should render a pending question.
type QuestionKind string

const (
	QuestionFreeText       QuestionKind = "free_text"
	QuestionMultipleChoice QuestionKind = "multiple_choice"
	QuestionYesNo          QuestionKind = "yes_no"
)

// Option is one selectable answer for a multiple-choice question.
type Option struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// PendingQuestion is the single open human-input request for a session.
// A session holds zero or one of these at any instant.
type PendingQuestion struct {
	ID        string       `json:"id"`
	Kind      QuestionKind `json:"kind"`
	Prompt    string       `json:"prompt"`
	Options   []Option     `json:"options,omitempty"`
	Number    int          `json:"number,omitempty"`
	Total     int          `json:"total,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Location is the client's location context from the handshake message.
type Location struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

// Credentials are the client-supplied API credentials for the list provider.
type Credentials struct {
	APIKey      string `json:"api_key"`
	BearerToken string `json:"bearer_token"`
	APIURL      string `json:"api_url"`
}
