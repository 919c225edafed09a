package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go/jetstream"
)

// AuditRecord is a row of the chat_audit table.
type AuditRecord struct {
	ID           uuid.UUID       `json:"id"`
	EventType    string          `json:"event_type"`
	RequestID    string          `json:"request_id"`
	SessionID    string          `json:"session_id"`
	Provenance   string          `json:"provenance"`
	ContextChars int             `json:"context_chars"`
	Details      json.RawMessage `json:"details"`
	CreatedAt    time.Time       `json:"created_at"`
}

// AuditStore persists audit records.
type AuditStore interface {
	Insert(ctx context.Context, rec *AuditRecord) error
}

// AuditRepository handles chat_audit PostgreSQL operations.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Insert persists a single audit record.
func (r *AuditRepository) Insert(ctx context.Context, rec *AuditRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	details := rec.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO chat_audit (id, event_type, request_id, session_id, provenance, context_chars, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.EventType, rec.RequestID, rec.SessionID, rec.Provenance, rec.ContextChars, details, createdAt)
	if err != nil {
		return fmt.Errorf("inserting chat audit record: %w", err)
	}
	return nil
}

// Recent returns the newest audit records, newest first.
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]AuditRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, event_type, request_id, session_id, provenance, context_chars, details, created_at
		 FROM chat_audit ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying chat audit: %w", err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		if err := rows.Scan(&rec.ID, &rec.EventType, &rec.RequestID, &rec.SessionID,
			&rec.Provenance, &rec.ContextChars, &rec.Details, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat audit: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AuditConsumer listens on the chat subject and persists events.
type AuditConsumer struct {
	store AuditStore
	js    jetstream.JetStream
}

// NewAuditConsumer creates a new chat audit consumer.
func NewAuditConsumer(store AuditStore, js jetstream.JetStream) *AuditConsumer {
	return &AuditConsumer{store: store, js: js}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *AuditConsumer) Start(ctx context.Context) error {
	consumer, err := EnsureConsumer(ctx, c.js, StreamEvents, "chat-audit", SubjectChat)
	if err != nil {
		return err
	}

	slog.Info("audit consumer started", "consumer", "chat-audit")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("audit consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handle(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// ackNaker is the subset of jetstream.Msg the consumer needs.
type ackNaker interface {
	Data() []byte
	Ack() error
	Nak() error
}

func (c *AuditConsumer) handle(ctx context.Context, msg ackNaker) {
	var event ChatEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.Error("audit consumer: unmarshaling event", "error", err)
		// Redelivery cannot fix a malformed payload.
		_ = msg.Ack()
		return
	}

	rec := toAuditRecord(event)
	if err := c.store.Insert(ctx, &rec); err != nil {
		slog.Error("audit consumer: persisting record", "error", err, "event_type", event.EventType)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()

	slog.Debug("audit consumer: persisted event", "event_type", event.EventType, "request_id", event.RequestID)
}

func toAuditRecord(event ChatEvent) AuditRecord {
	rec := AuditRecord{
		ID:           uuid.New(),
		EventType:    event.EventType,
		RequestID:    event.RequestID,
		SessionID:    event.SessionID,
		Provenance:   event.Provenance,
		ContextChars: event.ContextChars,
		CreatedAt:    event.Timestamp,
	}

	details := map[string]any{
		"mode":        event.Mode,
		"reply_chars": event.ReplyChars,
		"duration_ms": event.DurationMS,
	}
	if event.Degraded {
		details["degraded"] = true
	}
	if event.Error != "" {
		details["error"] = event.Error
	}
	if data, err := json.Marshal(details); err == nil {
		rec.Details = data
	}
	return rec
}
