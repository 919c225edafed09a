package chat

import (
	"errors"
	"fmt"
)

// Client-facing error messages.
const (
	MsgInvalidMessage   = "Invalid input. 'message' must be a non-empty string."
	MsgInvalidHistory   = "Invalid input. 'conversationHistory' must be an array of {role, content}."
	MsgGenerationFailed = "Something went wrong with the assistant."
)

// ErrSessionsDisabled is returned by session operations when no session
// store is configured.
var ErrSessionsDisabled = errors.New("session memory is not configured")

// InputError rejects a request before any retrieval or generation call.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func invalidMessage() *InputError {
	return &InputError{Field: "message", Message: MsgInvalidMessage}
}

func invalidHistory() *InputError {
	return &InputError{Field: "conversationHistory", Message: MsgInvalidHistory}
}

// GenerationError wraps a model failure after input was accepted.
type GenerationError struct {
	Mode string
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Mode, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
