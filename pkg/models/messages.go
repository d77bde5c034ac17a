package models

import "time"

// Inbound message types accepted over the websocket.
const (
	InboundHandshake    = "handshake"
	InboundUserMessage  = "user_message"
	InboundUserResponse = "user_response"
	InboundReset        = "reset"
	InboundCancel       = "cancel"
)

// Outbound message types emitted over the websocket.
const (
	OutboundUser         = "user"
	OutboundAssistant    = "assistant"
	OutboundThinking     = "assistant_thinking"
	OutboundQuestion     = "question"
	OutboundOptions      = "options"
	OutboundConfirmation = "confirmation"
	OutboundError        = "error"
	OutboundSystem       = "system"
)

// Inbound is a client frame. Type selects which fields are meaningful.
type Inbound struct {
	Type        string       `json:"type"`
	Message     string       `json:"message,omitempty"`
	QuestionID  string       `json:"question_id,omitempty"`
	Response    string       `json:"response,omitempty"`
	Location    *Location    `json:"location,omitempty"`
	Credentials *Credentials `json:"credentials,omitempty"`
}

// Outbound is a server frame delivered to the client.
type Outbound struct {
	Type           string    `json:"type"`
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
	QuestionID     string    `json:"question_id,omitempty"`
	Options        []Option  `json:"options,omitempty"`
	QuestionNumber int       `json:"question_number,omitempty"`
	TotalQuestions int       `json:"total_questions,omitempty"`
	DisableInput   bool      `json:"disable_input,omitempty"`
}

// NewOutbound builds a timestamped frame of the given type.
func NewOutbound(msgType, message string) Outbound {
	return Outbound{
		Type:      msgType,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}
