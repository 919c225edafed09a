// Package session keeps per-session chat history in Redis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sdrc-devforce/devforce/internal/conversation"
)

// Store manages session history. The seed turns (persona and its
// acknowledgement) are stored apart from the rolling turns so trimming
// never drops them.
type Store struct {
	client      *redis.Client
	ttl         time.Duration
	maxMessages int
}

// NewStore creates a new session store.
func NewStore(client *redis.Client, ttl time.Duration, maxMessages int) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxMessages <= 0 {
		maxMessages = 40
	}
	return &Store{client: client, ttl: ttl, maxMessages: maxMessages}
}

func seedKey(sessionID string) string {
	return fmt.Sprintf("session:%s:seed", sessionID)
}

func turnsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:turns", sessionID)
}

// Seed stores the opening turns for a session unless it already has them.
// It reports whether the seed was written.
func (s *Store) Seed(ctx context.Context, sessionID string, seed []conversation.Message) (bool, error) {
	data, err := json.Marshal(seed)
	if err != nil {
		return false, fmt.Errorf("marshaling seed: %w", err)
	}
	created, err := s.client.SetNX(ctx, seedKey(sessionID), data, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", seedKey(sessionID), err)
	}
	return created, nil
}

// History returns the seed followed by the stored turns, oldest first.
func (s *Store) History(ctx context.Context, sessionID string) ([]conversation.Message, error) {
	pipe := s.client.Pipeline()
	seedCmd := pipe.Get(ctx, seedKey(sessionID))
	turnsCmd := pipe.LRange(ctx, turnsKey(sessionID), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if err := turnsCmd.Err(); err != nil {
		return nil, fmt.Errorf("lrange %s: %w", turnsKey(sessionID), err)
	}

	var history []conversation.Message
	if raw, err := seedCmd.Bytes(); err == nil {
		if err := json.Unmarshal(raw, &history); err != nil {
			return nil, fmt.Errorf("decoding seed for %s: %w", sessionID, err)
		}
	}

	for _, v := range turnsCmd.Val() {
		var msg conversation.Message
		if err := json.Unmarshal([]byte(v), &msg); err != nil {
			slog.Warn("skipping malformed session turn", "session_id", sessionID, "error", err)
			continue
		}
		history = append(history, msg)
	}
	return history, nil
}

// Append adds turns to the session, trims it and refreshes the TTL in one
// pipeline.
func (s *Store) Append(ctx context.Context, sessionID string, turns ...conversation.Message) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]any, len(turns))
	for i, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("marshaling turn: %w", err)
		}
		values[i] = string(data)
	}

	key := turnsKey(sessionID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-s.maxMessages), -1)
	pipe.Expire(ctx, key, s.ttl)
	pipe.Expire(ctx, seedKey(sessionID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pipeline exec for %s: %w", key, err)
	}
	return nil
}

// Clear deletes the session.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, seedKey(sessionID), turnsKey(sessionID)).Err()
}
