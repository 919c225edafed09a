package gemini

import (
	"context"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/sdrc-devforce/devforce/internal/conversation"
	"github.com/sdrc-devforce/devforce/internal/llm"
)

// Generator implements llm.Model on top of the Gemini models API.
type Generator struct {
	client *genai.Client
	model  string
}

// NewGenerator creates a Generator for model, defaulting to gemini-2.0-flash.
func NewGenerator(client *genai.Client, model string) *Generator {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Generator{client: client, model: model}
}

// Generate sends prompt as a single user turn.
func (g *Generator) Generate(ctx context.Context, prompt string, cfg llm.GenerationConfig) llm.Fragments {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	config := contentConfig(cfg)

	if cfg.Stream {
		return fragments(g.client.Models.GenerateContentStream(ctx, g.model, contents, config))
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.Single("", fmt.Errorf("generating content: %w", err))
	}
	return llm.Single(resp.Text(), nil)
}

// Converse opens a chat seeded with history and sends message as the next
// user turn. The chat object lives only for this call; the history is
// owned by the caller.
func (g *Generator) Converse(ctx context.Context, history []conversation.Message, message string, cfg llm.GenerationConfig) llm.Fragments {
	chat, err := g.client.Chats.Create(ctx, g.model, contentConfig(cfg), toContents(history))
	if err != nil {
		return llm.Single("", fmt.Errorf("creating chat session: %w", err))
	}

	part := genai.Part{Text: message}
	if cfg.Stream {
		return fragments(chat.SendMessageStream(ctx, part))
	}
	resp, err := chat.SendMessage(ctx, part)
	if err != nil {
		return llm.Single("", fmt.Errorf("sending chat message: %w", err))
	}
	return llm.Single(resp.Text(), nil)
}

func contentConfig(cfg llm.GenerationConfig) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature: genai.Ptr(cfg.Temperature),
	}
}

func toContents(history []conversation.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		var role genai.Role = genai.RoleUser
		if m.Role == conversation.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}

// fragments maps a genai response stream onto text fragments.
func fragments(stream iter.Seq2[*genai.GenerateContentResponse, error]) llm.Fragments {
	return func(yield func(string, error) bool) {
		for resp, err := range stream {
			if err != nil {
				yield("", fmt.Errorf("streaming content: %w", err))
				return
			}
			if !yield(resp.Text(), nil) {
				return
			}
		}
	}
}
