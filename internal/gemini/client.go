// Package gemini adapts Google's Gemini API to the generation and
// embedding interfaces used by the rest of the service.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// NewClient creates a Gemini API client. One client is shared by the
// generator and the embedder and is safe for concurrent use.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return client, nil
}
