package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for problems that make the service unusable.
// It collects all errors into a single joined error. Missing settings for
// optional subsystems are reported as warnings and degrade that feature.
func (c *Config) Validate() error {
	var errs []string

	// The model is the one collaborator the service cannot answer without.
	if c.Gemini.APIKey == "" {
		errs = append(errs, "GEMINI_API_KEY is required")
	}
	if c.Gemini.Temperature < 0 || c.Gemini.Temperature > 2 {
		errs = append(errs, fmt.Sprintf("GEMINI_TEMPERATURE must be 0–2, got %.2f", c.Gemini.Temperature))
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Enabled() && (c.DB.Port < 1 || c.DB.Port > 65535) {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Enabled() && (c.Redis.Port < 1 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	if c.Retrieval.TopK < 1 {
		errs = append(errs, fmt.Sprintf("RETRIEVAL_TOPK must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.KeywordLimit < 1 {
		errs = append(errs, fmt.Sprintf("RETRIEVAL_KEYWORD_LIMIT must be positive, got %d", c.Retrieval.KeywordLimit))
	}
	if c.Chat.HistoryLimit < 1 {
		errs = append(errs, fmt.Sprintf("CHAT_HISTORY_LIMIT must be positive, got %d", c.Chat.HistoryLimit))
	}
	if c.Retrieval.Timeout <= 0 {
		errs = append(errs, "RETRIEVAL_TIMEOUT must be positive")
	}
	if c.Chat.GenerationTimeout <= 0 {
		errs = append(errs, "CHAT_GENERATION_TIMEOUT must be positive")
	}

	// Optional subsystems: warn only
	if !c.DB.Enabled() {
		slog.Warn("DB_HOST is empty, document retrieval is disabled")
	} else if c.DB.Password == "" {
		slog.Warn("DB_PASSWORD is empty")
	}
	if !c.Redis.Enabled() {
		slog.Warn("REDIS_HOST is empty, session memory and rate limiting are disabled")
	}
	if !c.NATS.Enabled() {
		slog.Debug("NATS_URL is empty, chat events are not published")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
