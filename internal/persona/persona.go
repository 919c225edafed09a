// Package persona holds the identity directive that leads every prompt.
package persona

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrMissing is returned when no persona directive could be loaded.
var ErrMissing = errors.New("persona directive is missing or empty")

// Store holds the persona directive. It is loaded once and never changes.
type Store struct {
	directive string
}

// Load builds a Store from inline text, or from the file at path when the
// inline text is empty.
func Load(path, inline string) (*Store, error) {
	text := strings.TrimSpace(inline)
	if text == "" {
		if path == "" {
			return nil, ErrMissing
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading persona file %s: %w", path, err)
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		return nil, ErrMissing
	}
	return &Store{directive: text}, nil
}

// Directive returns the persona directive.
func (s *Store) Directive() string {
	return s.directive
}
