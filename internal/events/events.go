// Package events publishes chat and ingestion events to NATS JetStream and
// persists chat events for auditing.
package events

import (
	"time"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// StreamEvents holds every event the service emits.
const StreamEvents = "DEVFORCE_EVENTS"

// Subject constants.
const (
	SubjectChat   = "devforce.events.chat"
	SubjectIngest = "devforce.events.ingest"
)

// Event types.
const (
	TypeChatReplied     = "chat.replied"
	TypeChatFailed      = "chat.failed"
	TypeSessionCleared  = "session.cleared"
	TypeIngestCompleted = "ingest.completed"
)

// ChatEvent is published after a chat request completes.
type ChatEvent struct {
	EventType    string    `json:"event_type"`
	RequestID    string    `json:"request_id,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	Mode         string    `json:"mode"` // stateless or session
	Provenance   string    `json:"provenance"`
	Degraded     bool      `json:"degraded,omitempty"`
	ContextChars int       `json:"context_chars"`
	ReplyChars   int       `json:"reply_chars"`
	DurationMS   int64     `json:"duration_ms"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// IngestEvent is published once per ingested source.
type IngestEvent struct {
	EventType string    `json:"event_type"`
	Source    string    `json:"source"`
	Chunks    int       `json:"chunks"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
