package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"campaign-generator/backend/internal/contacts"
	"campaign-generator/backend/internal/services"
	"campaign-generator/backend/pkg/models"
)

// Node names.
const (
	NodeExtract          = "extract"
	NodeClarify          = "clarify"
	NodeMatchLists       = "match_lists"
	NodeConfirmSelection = "confirm_selection"
	NodeConfirmNewList   = "confirm_new_list"
	NodeSummary          = "summary"
	NodeCancelled        = "cancelled"
	NodeError            = "error"
)

const (
	// MaxClarifications bounds the clarify loop across the whole session,
	// not per field. At the cap, remaining gaps are filled with defaults.
	MaxClarifications = 5

	// MaxSelectionAttempts bounds re-prompts for an unparseable list
	// selection before defaulting to create-new.
	MaxSelectionAttempts = 2
)

// defaultAnswer fills a field the user declined to clarify when extraction
// produced no better default.
const defaultAnswer = "Not specified - please use best judgment"

// BuildGraph wires the campaign workflow:
//
//	extract -> (missing? clarify loop) -> match_lists ->
//	(matches? confirm_selection : confirm_new_list) -> summary
//
// plus the cancelled and error terminals.
func BuildGraph() *Graph {
	g := NewGraph(NodeExtract)

	g.AddNode(Node{Name: NodeExtract, Kind: NodeAutomatic, Run: runExtract})
	g.AddNode(Node{Name: NodeClarify, Kind: NodeInteractive, Run: runClarify})
	g.AddNode(Node{Name: NodeMatchLists, Kind: NodeAutomatic, Run: runMatchLists})
	g.AddNode(Node{Name: NodeConfirmSelection, Kind: NodeInteractive, Run: runConfirmSelection})
	g.AddNode(Node{Name: NodeConfirmNewList, Kind: NodeInteractive, Run: runConfirmNewList})
	g.AddNode(Node{Name: NodeSummary, Kind: NodeTerminal, Run: runSummary})
	g.AddNode(Node{Name: NodeCancelled, Kind: NodeTerminal, Run: runCancelled})
	g.AddNode(Node{Name: NodeError, Kind: NodeTerminal, Run: runError})

	fieldsMissing := func(s *models.CampaignState) bool { return len(s.Missing) > 0 }
	fieldsComplete := func(s *models.CampaignState) bool { return len(s.Missing) == 0 }

	g.AddEdge(NodeExtract, fieldsMissing, NodeClarify)
	g.AddEdge(NodeExtract, fieldsComplete, NodeMatchLists)

	// The clarify loop re-enters itself; the node enforces the question cap.
	g.AddEdge(NodeClarify, fieldsMissing, NodeClarify)
	g.AddEdge(NodeClarify, fieldsComplete, NodeMatchLists)

	g.AddEdge(NodeMatchLists, func(s *models.CampaignState) bool { return len(s.MatchedLists) > 0 }, NodeConfirmSelection)
	g.AddEdge(NodeMatchLists, Always, NodeConfirmNewList)

	g.AddEdge(NodeConfirmSelection, Always, NodeSummary)

	g.AddEdge(NodeConfirmNewList, func(s *models.CampaignState) bool { return s.CreateNewList }, NodeSummary)
	g.AddEdge(NodeConfirmNewList, Always, NodeCancelled)

	return g
}

// runExtract parses the raw request into audience, offer and schedule. An
// unparsable completion marks all three fields missing so the clarify loop
// starts with the highest-priority one; there is no retry.
func runExtract(ctx context.Context, rt *Runtime) error {
	state := rt.State
	thinking := models.NewOutbound(models.OutboundThinking, "Analyzing your campaign request...")
	thinking.DisableInput = true
	rt.Emit(thinking)

	raw, err := rt.Completion.Complete(ctx, services.ExtractPrompt(state.Prompt))
	var parsed services.ParsedCampaign
	if err == nil {
		parsed, err = services.DecodeParsedCampaign(raw)
	}
	if err != nil {
		rt.Logger.Warn("extraction failed", "session_id", rt.SessionID, "error", err)
		state.Missing = append([]models.FieldName(nil), models.FieldPriority...)
		state.Phase = models.PhaseClarify
		rt.Emit(models.NewOutbound(models.OutboundAssistant,
			"I couldn't work out the details from that, so let me ask a few questions."))
		return nil
	}

	state.Audience = parsed.Audience
	state.Offer = parsed.Offer
	state.Schedule = parsed.Schedule
	state.Defaults = parsed.Defaults
	state.Missing = parsed.MissingFields()
	if len(state.Missing) > 0 {
		state.Phase = models.PhaseClarify
	} else {
		state.Phase = models.PhaseMatchLists
	}

	summary := fmt.Sprintf("✓ Understood:\n• **Audience:** %s\n• **Offer:** %s\n• **Schedule:** %s",
		orPlaceholder(state.Audience), orPlaceholder(state.Offer), orPlaceholder(state.Schedule))
	rt.Emit(models.NewOutbound(models.OutboundAssistant, summary))
	return nil
}

// runClarify asks for the single highest-priority missing field and merges
// the reply. Once the session cap is reached it fills every remaining gap
// with the extraction-time defaults instead of asking.
func runClarify(ctx context.Context, rt *Runtime) error {
	state := rt.State
	state.Phase = models.PhaseClarify

	if state.QuestionsAsked >= MaxClarifications {
		for _, field := range state.Missing {
			state.SetField(field, defaultFor(state, field))
		}
		state.Missing = nil
		state.Phase = models.PhaseMatchLists
		rt.Emit(models.NewOutbound(models.OutboundSystem,
			"That's enough questions - I'll fill in the remaining details with my best guesses."))
		return nil
	}

	if state.QuestionsAsked == 0 {
		remaining := len(state.Missing)
		if remaining > MaxClarifications {
			remaining = MaxClarifications
		}
		rt.Emit(models.NewOutbound(models.OutboundSystem,
			fmt.Sprintf("I need to clarify %d thing(s) about your campaign.", remaining)))
	}

	field := state.Missing[0]
	prompt := services.ClarifyQuestion(field)

	q := rt.NewQuestion(models.QuestionFreeText, prompt)
	q.Number = state.QuestionsAsked + 1
	q.Total = totalQuestions(state)

	frame := models.NewOutbound(models.OutboundQuestion, prompt)
	frame.QuestionNumber = q.Number
	frame.TotalQuestions = q.Total

	answer, err := rt.Ask(ctx, q, frame)
	if err != nil {
		return err
	}

	applied := strings.TrimSpace(answer)
	if applied == "" {
		// An empty reply is accepted; the field falls back to the default.
		applied = defaultFor(state, field)
	}

	state.SetField(field, applied)
	state.Clarifications[prompt] = applied
	state.QuestionsAsked++
	state.DropMissing(field)
	if len(state.Missing) == 0 {
		state.Phase = models.PhaseMatchLists
	}
	return nil
}

// runMatchLists fetches the location's smart lists and ranks them against
// the audience. Provider failures and empty results are valid outcomes that
// route to the no-matches branch.
func runMatchLists(ctx context.Context, rt *Runtime) error {
	state := rt.State
	state.Phase = models.PhaseMatchLists

	thinking := models.NewOutbound(models.OutboundThinking, "Checking for existing smart lists...")
	thinking.DisableInput = true
	rt.Emit(thinking)

	location, credentials := rt.Handshake()
	lists, err := rt.Lists.SmartLists(ctx, location, credentials)
	if err != nil {
		if !errors.Is(err, contacts.ErrNoLocation) {
			rt.Logger.Warn("list provider failed", "session_id", rt.SessionID, "error", err)
		}
		lists = nil
	}

	state.MatchedLists = rt.Matcher.Rank(ctx, state.Audience, lists)
	state.Phase = models.PhaseSelectList
	return nil
}

// runConfirmSelection presents the matched lists plus a create-new option.
// An unparseable reply re-prompts once; the second failure defaults to
// create-new without a third prompt.
func runConfirmSelection(ctx context.Context, rt *Runtime) error {
	state := rt.State
	matched := state.MatchedLists

	rt.Emit(models.NewOutbound(models.OutboundSystem,
		fmt.Sprintf("Great! I found %d existing smart list(s) that match your audience.", len(matched))))

	options := make([]models.Option, 0, len(matched)+1)
	for i, list := range matched {
		options = append(options, models.Option{
			ID:          strconv.Itoa(i + 1),
			Label:       list.Name,
			Description: fmt.Sprintf("Relevance: %d%% - %s", list.Score, list.Reason),
		})
	}
	options = append(options, models.Option{
		ID:          "0",
		Label:       "Create new smart list",
		Description: "A custom list based on your audience criteria",
	})

	for {
		q := rt.NewQuestion(models.QuestionMultipleChoice, "Please select a smart list or create a new one:")
		q.Options = options

		frame := models.NewOutbound(models.OutboundOptions, q.Prompt)
		frame.Options = options

		answer, err := rt.Ask(ctx, q, frame)
		if err != nil {
			return err
		}

		choice, ok := parseChoice(answer, len(matched))
		if ok {
			if choice == 0 {
				state.CreateNewList = true
				rt.Emit(models.NewOutbound(models.OutboundSystem, "✓ I'll create a new smart list for your campaign."))
			} else {
				selected := matched[choice-1]
				state.SelectedListID = selected.ID
				state.SelectedListName = selected.Name
				rt.Emit(models.NewOutbound(models.OutboundSystem, "✓ Using smart list: "+selected.Name))
			}
			state.Phase = models.PhaseSummary
			return nil
		}

		state.SelectionAttempts++
		if state.SelectionAttempts >= MaxSelectionAttempts {
			state.CreateNewList = true
			state.Phase = models.PhaseSummary
			rt.Emit(models.NewOutbound(models.OutboundSystem,
				"I couldn't read that selection, so I'll create a new smart list for your campaign."))
			return nil
		}
		rt.Emit(models.NewOutbound(models.OutboundError,
			"Invalid selection. Please reply with one of the option numbers."))
	}
}

// runConfirmNewList handles the zero-matches branch with a plain yes/no.
func runConfirmNewList(ctx context.Context, rt *Runtime) error {
	state := rt.State

	rt.Emit(models.NewOutbound(models.OutboundSystem, "No existing smart lists match your audience criteria."))
	rt.Emit(models.NewOutbound(models.OutboundSystem, "Target Audience: "+orPlaceholder(state.Audience)))

	q := rt.NewQuestion(models.QuestionYesNo, "Would you like me to create a new smart list?")
	frame := models.NewOutbound(models.OutboundConfirmation, q.Prompt)

	answer, err := rt.Ask(ctx, q, frame)
	if err != nil {
		return err
	}

	if isAffirmative(answer) {
		state.CreateNewList = true
		state.Phase = models.PhaseSummary
		rt.Emit(models.NewOutbound(models.OutboundSystem, "✓ I'll create a new smart list for your campaign."))
	}
	return nil
}

// runSummary is the happy-path terminal: report the configured campaign.
// Downstream phases (list creation, template generation, scheduling) pick up
// from here.
func runSummary(_ context.Context, rt *Runtime) error {
	state := rt.State
	state.Phase = models.PhaseCompleted

	target := "a new smart list will be created"
	if state.SelectedListID != "" {
		target = "smart list " + state.SelectedListName
	}
	message := fmt.Sprintf("Your campaign is configured:\n• **Audience:** %s\n• **Offer:** %s\n• **Schedule:** %s\n• **Contacts:** %s",
		orPlaceholder(state.Audience), orPlaceholder(state.Offer), orPlaceholder(state.Schedule), target)
	rt.Emit(models.NewOutbound(models.OutboundAssistant, message))
	return nil
}

func runCancelled(_ context.Context, rt *Runtime) error {
	rt.State.Phase = models.PhaseCancelled
	rt.Emit(models.NewOutbound(models.OutboundSystem, "Campaign creation cancelled."))
	return nil
}

func runError(_ context.Context, rt *Runtime) error {
	rt.State.Phase = models.PhaseError
	rt.Emit(models.NewOutbound(models.OutboundError,
		"Something went wrong while processing your campaign. Please try again."))
	return nil
}

func defaultFor(state *models.CampaignState, field models.FieldName) string {
	if value := state.Defaults.Value(field); value != "" {
		return value
	}
	return defaultAnswer
}

func totalQuestions(state *models.CampaignState) int {
	total := state.QuestionsAsked + len(state.Missing)
	if total > MaxClarifications {
		total = MaxClarifications
	}
	return total
}

// parseChoice reads a selection reply as an option number between 0
// (create new) and max.
func parseChoice(answer string, max int) (int, bool) {
	choice, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil || choice < 0 || choice > max {
		return 0, false
	}
	return choice, true
}

func isAffirmative(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "yes", "y", "ok", "sure", "proceed":
		return true
	}
	return false
}

func orPlaceholder(value string) string {
	if strings.TrimSpace(value) == "" {
		return "N/A"
	}
	return value
}
