// Package conversation models chat turns and renders them into prompts.
package conversation

import "time"

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultHistoryLimit is the number of most recent turns kept before a
// prompt is assembled.
const DefaultHistoryLimit = 10

// Message is a single conversation turn. Messages are passed by value and
// never modified after creation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Label returns the speaker label used in rendered history.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Bound returns the most recent limit messages of history, oldest first.
// The returned slice is a copy; history itself is not modified.
func Bound(history []Message, limit int) []Message {
	if limit <= 0 {
		return []Message{}
	}
	start := 0
	if len(history) > limit {
		start = len(history) - limit
	}
	out := make([]Message, len(history)-start)
	copy(out, history[start:])
	return out
}
