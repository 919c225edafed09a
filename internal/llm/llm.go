// Package llm defines the generative-model boundary used by the chat
// pipeline. Replies arrive as a finite ordered sequence of text fragments.
package llm

import (
	"context"
	"errors"
	"iter"
	"strings"

	"github.com/sdrc-devforce/devforce/internal/conversation"
)

// GenerationConfig is passed explicitly on every model invocation.
type GenerationConfig struct {
	Temperature float32
	Stream      bool
}

// Fragments yields reply fragments in arrival order. The sequence ends
// when the model signals completion; a non-nil error ends it early.
type Fragments = iter.Seq2[string, error]

// Model generates replies.
type Model interface {
	// Generate answers a single self-contained prompt.
	Generate(ctx context.Context, prompt string, cfg GenerationConfig) Fragments
	// Converse replays history as prior chat turns and sends message as
	// the next user turn.
	Converse(ctx context.Context, history []conversation.Message, message string, cfg GenerationConfig) Fragments
}

// Collect drains fragments and joins them into the final reply. Nothing is
// returned alongside an error.
func Collect(fragments Fragments) (string, error) {
	var sb strings.Builder
	for text, err := range fragments {
		if err != nil {
			return "", err
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

// Single wraps a complete reply as a one-fragment sequence.
func Single(text string, err error) Fragments {
	return func(yield func(string, error) bool) {
		yield(text, err)
	}
}

// ErrEmptyReply is returned when the model completes without any text.
var ErrEmptyReply = errors.New("model returned an empty reply")
