package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing events to NATS JetStream.
// A nil Publisher, or one without a JetStream context, discards events.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishChat publishes a chat event.
func (p *Publisher) PublishChat(ctx context.Context, event ChatEvent) error {
	return p.publish(ctx, SubjectChat, event)
}

// PublishIngest publishes an ingestion event.
func (p *Publisher) PublishIngest(ctx context.Context, event IngestEvent) error {
	return p.publish(ctx, SubjectIngest, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	if p == nil || p.js == nil {
		return nil
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
