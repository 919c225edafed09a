// Package chat answers user messages with retrieved context, either
// statelessly from caller-supplied history or from session memory.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sdrc-devforce/devforce/internal/conversation"
	"github.com/sdrc-devforce/devforce/internal/events"
	"github.com/sdrc-devforce/devforce/internal/llm"
	"github.com/sdrc-devforce/devforce/internal/metrics"
	"github.com/sdrc-devforce/devforce/internal/requestid"
	"github.com/sdrc-devforce/devforce/internal/retrieval"
	"github.com/sdrc-devforce/devforce/internal/session"
)

// Retriever finds background passages for a message.
type Retriever interface {
	Retrieve(ctx context.Context, query string) retrieval.Result
}

// SessionStore holds per-session history.
type SessionStore interface {
	Seed(ctx context.Context, sessionID string, seed []conversation.Message) (bool, error)
	History(ctx context.Context, sessionID string) ([]conversation.Message, error)
	Append(ctx context.Context, sessionID string, turns ...conversation.Message) error
	Clear(ctx context.Context, sessionID string) error
}

// EventPublisher receives chat events.
type EventPublisher interface {
	PublishChat(ctx context.Context, event events.ChatEvent) error
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	HistoryLimit      int
	GenerationTimeout time.Duration
	Generation        llm.GenerationConfig
	// SessionAck is the model turn that follows the persona when a session
	// is seeded.
	SessionAck string
}

// Service runs the chat pipeline. The persona and collaborators are
// shared read-only across requests.
type Service struct {
	persona   string
	retriever Retriever
	model     llm.Model
	opts      Options

	sessions  SessionStore
	locks     *session.Locker
	publisher EventPublisher
}

// NewService creates a Service. retriever may be nil, in which case every
// reply is generated without context.
func NewService(persona string, retriever Retriever, model llm.Model, opts Options) *Service {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = conversation.DefaultHistoryLimit
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 60 * time.Second
	}
	if opts.SessionAck == "" {
		opts.SessionAck = "Understood. I will follow these instructions for the rest of our conversation."
	}
	return &Service{
		persona:   persona,
		retriever: retriever,
		model:     model,
		opts:      opts,
	}
}

// WithSessions enables session mode backed by store.
func (s *Service) WithSessions(store SessionStore) *Service {
	s.sessions = store
	s.locks = session.NewLocker()
	return s
}

// WithPublisher enables chat events.
func (s *Service) WithPublisher(p EventPublisher) *Service {
	s.publisher = p
	return s
}

// SessionsEnabled reports whether session mode is available.
func (s *Service) SessionsEnabled() bool {
	return s.sessions != nil
}

// Reply answers req using only the history it carries.
func (s *Service) Reply(ctx context.Context, req Request) (*Reply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, invalidMessage()
	}
	history := req.messages()
	for _, m := range history {
		if !m.Role.Valid() {
			return nil, invalidHistory()
		}
	}
	history = conversation.Bound(history, s.opts.HistoryLimit)

	start := time.Now()
	res := s.retrieve(ctx, message)
	contextText := res.Text()
	prompt := conversation.Assemble(s.persona, contextText, history, message)

	text, err := s.generate(ctx, ModeStateless, func(ctx context.Context) llm.Fragments {
		return s.model.Generate(ctx, prompt, s.opts.Generation)
	})
	meta := newMeta(res, contextText)
	s.publish(ctx, ModeStateless, "", meta, text, start, err)
	if err != nil {
		return nil, err
	}

	return &Reply{Text: text, Meta: meta}, nil
}

// ReplyInSession answers message within the session identified by
// sessionID. Calls for one session are serialized; the new turns are
// stored only after a complete reply.
func (s *Service) ReplyInSession(ctx context.Context, sessionID, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, invalidMessage()
	}
	if !s.SessionsEnabled() {
		return nil, ErrSessionsDisabled
	}

	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("waiting for session %s: %w", sessionID, err)
	}
	defer unlock()

	start := time.Now()
	if _, err := s.sessions.Seed(ctx, sessionID, s.seed()); err != nil {
		return nil, fmt.Errorf("seeding session: %w", err)
	}
	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session history: %w", err)
	}
	history = s.boundSession(history)

	res := s.retrieve(ctx, message)
	contextText := res.Text()
	turn := conversation.AugmentQuestion(contextText, message)

	text, err := s.generate(ctx, ModeSession, func(ctx context.Context) llm.Fragments {
		return s.model.Converse(ctx, history, turn, s.opts.Generation)
	})
	meta := newMeta(res, contextText)
	s.publish(ctx, ModeSession, sessionID, meta, text, start, err)
	if err != nil {
		return nil, err
	}

	ts := now()
	if err := s.sessions.Append(ctx, sessionID,
		conversation.Message{Role: conversation.RoleUser, Content: turn, Timestamp: ts},
		conversation.Message{Role: conversation.RoleAssistant, Content: text, Timestamp: ts},
	); err != nil {
		return nil, fmt.Errorf("storing session turns: %w", err)
	}

	return &Reply{Text: text, Meta: meta}, nil
}

// ClearSession forgets a session. Clearing an unknown session is not an
// error.
func (s *Service) ClearSession(ctx context.Context, sessionID string) error {
	if !s.SessionsEnabled() {
		return ErrSessionsDisabled
	}
	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("waiting for session %s: %w", sessionID, err)
	}
	defer unlock()

	if err := s.sessions.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	s.emit(ctx, events.ChatEvent{
		EventType: events.TypeSessionCleared,
		RequestID: requestid.From(ctx),
		SessionID: sessionID,
		Mode:      ModeSession,
		Timestamp: now(),
	})
	return nil
}

// seedTurns is the length of the persona seed that leads session history.
const seedTurns = 2

// boundSession keeps the seed and the most recent HistoryLimit turns.
func (s *Service) boundSession(history []conversation.Message) []conversation.Message {
	n := min(seedTurns, len(history))
	return append(slices.Clip(history[:n]), conversation.Bound(history[n:], s.opts.HistoryLimit)...)
}

func (s *Service) seed() []conversation.Message {
	ts := now()
	return []conversation.Message{
		{Role: conversation.RoleUser, Content: s.persona, Timestamp: ts},
		{Role: conversation.RoleAssistant, Content: s.opts.SessionAck, Timestamp: ts},
	}
}

func (s *Service) retrieve(ctx context.Context, message string) retrieval.Result {
	if s.retriever == nil {
		return retrieval.Result{Provenance: retrieval.ProvenanceNone}
	}
	return s.retriever.Retrieve(ctx, message)
}

// generate runs one model call under the generation timeout and drains
// the reply. Any failure becomes a GenerationError.
func (s *Service) generate(ctx context.Context, mode string, call func(context.Context) llm.Fragments) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.opts.GenerationTimeout)
	defer cancel()

	start := time.Now()
	text, err := llm.Collect(call(genCtx))
	if err == nil && strings.TrimSpace(text) == "" {
		err = llm.ErrEmptyReply
	}
	metrics.GenerationDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.GenerationsTotal.WithLabelValues(mode, "error").Inc()
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("generation timed out after %s: %w", s.opts.GenerationTimeout, err)
		}
		return "", &GenerationError{Mode: mode, Err: err}
	}
	metrics.GenerationsTotal.WithLabelValues(mode, "success").Inc()
	return text, nil
}

func (s *Service) publish(ctx context.Context, mode, sessionID string, meta Meta, text string, start time.Time, genErr error) {
	event := events.ChatEvent{
		EventType:    events.TypeChatReplied,
		RequestID:    requestid.From(ctx),
		SessionID:    sessionID,
		Mode:         mode,
		Provenance:   string(meta.Provenance),
		Degraded:     meta.Degraded,
		ContextChars: meta.ContextChars,
		ReplyChars:   len([]rune(text)),
		DurationMS:   time.Since(start).Milliseconds(),
		Timestamp:    now(),
	}
	if genErr != nil {
		event.EventType = events.TypeChatFailed
		event.Error = genErr.Error()
	}
	s.emit(ctx, event)
}

// emit publishes without blocking the reply on a cancelled request and
// only logs failures.
func (s *Service) emit(ctx context.Context, event events.ChatEvent) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.publisher.PublishChat(pubCtx, event); err != nil {
		slog.Warn("publishing chat event", "error", err, "event_type", event.EventType)
	}
}
