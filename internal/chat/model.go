package chat

import (
	"time"

	"github.com/sdrc-devforce/devforce/internal/conversation"
	"github.com/sdrc-devforce/devforce/internal/retrieval"
)

// Modes label metrics and events.
const (
	ModeStateless = "stateless"
	ModeSession   = "session"
)

// HistoryEntry is one caller-supplied prior turn.
type HistoryEntry struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content"`
}

// Request is the body of a stateless chat call.
type Request struct {
	Message             string         `json:"message" validate:"required"`
	ConversationHistory []HistoryEntry `json:"conversationHistory" validate:"omitempty,dive"`
}

// SessionRequest is the body of a session chat call.
type SessionRequest struct {
	Message string `json:"message" validate:"required"`
}

// Reply is a completed answer.
type Reply struct {
	Text string `json:"reply"`
	Meta Meta   `json:"meta"`
}

type Meta struct {
	HasContext   bool                 `json:"hasContext"`
	ContextChars int                  `json:"contextChars"`
	Degraded     bool                 `json:"degraded,omitempty"`
	Provenance   retrieval.Provenance `json:"-"`
}

func newMeta(res retrieval.Result, contextText string) Meta {
	return Meta{
		HasContext:   contextText != "",
		ContextChars: len([]rune(contextText)),
		Degraded:     res.Degraded,
		Provenance:   res.Provenance,
	}
}

func (r Request) messages() []conversation.Message {
	out := make([]conversation.Message, len(r.ConversationHistory))
	for i, h := range r.ConversationHistory {
		out[i] = conversation.Message{Role: conversation.Role(h.Role), Content: h.Content}
	}
	return out
}

func now() time.Time {
	return time.Now().UTC()
}
