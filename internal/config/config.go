package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Gemini    GeminiConfig
	Persona   PersonaConfig
	Retrieval RetrievalConfig
	Chat      ChatConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// DBConfig describes the document store. The store is optional: an empty
// Host leaves retrieval without its backing database.
type DBConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MigrationsPath string
}

func (c DBConfig) Enabled() bool {
	return c.Host != ""
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

func (c NATSConfig) Enabled() bool {
	return c.URL != ""
}

type GeminiConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	Stream         bool
}

type PersonaConfig struct {
	Path string
	Text string
}

type RetrievalConfig struct {
	TopK         int
	KeywordLimit int
	Timeout      time.Duration
	// Corrections maps a misspelled lexical term to its corrected form,
	// e.g. RETRIEVAL_CORRECTIONS="tution=tuition,admision=admission".
	Corrections map[string]string
}

type ChatConfig struct {
	HistoryLimit       int
	GenerationTimeout  time.Duration
	ExposeErrorDetail  bool
	SessionAckResponse string
}

type SessionConfig struct {
	TTL time.Duration
	// MaxMessages caps the stored turns per session, excluding the seed.
	MaxMessages int
}

type RateLimitConfig struct {
	MaxRequests int
	WindowSec   int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing). Its keys go
	// through the same mapping as the environment.
	_ = k.Load(file.Provider(".env"), dotenv.ParserEnv("", ".", envKey))

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", envKey), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:           k.String("db.host"),
			Port:           k.Int("db.port"),
			User:           k.String("db.user"),
			Password:       k.String("db.password"),
			Name:           k.String("db.name"),
			SSLMode:        k.String("db.sslmode"),
			MaxConns:       int32(k.Int("db.max.conns")),
			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Gemini: GeminiConfig{
			APIKey:         k.String("gemini.api.key"),
			Model:          k.String("gemini.model"),
			EmbeddingModel: k.String("gemini.embedding.model"),
			Temperature:    float32(k.Float64("gemini.temperature")),
			Stream:         k.Bool("gemini.stream"),
		},
		Persona: PersonaConfig{
			Path: k.String("persona.path"),
			Text: k.String("persona.text"),
		},
		Retrieval: RetrievalConfig{
			TopK:         k.Int("retrieval.topk"),
			KeywordLimit: k.Int("retrieval.keyword.limit"),
		},
		Chat: ChatConfig{
			HistoryLimit:       k.Int("chat.history.limit"),
			ExposeErrorDetail:  k.Bool("chat.expose.error.detail"),
			SessionAckResponse: k.String("chat.session.ack"),
		},
		Session: SessionConfig{
			MaxMessages: k.Int("session.max.messages"),
		},
		RateLimit: RateLimitConfig{
			MaxRequests: k.Int("ratelimit.max.requests"),
			WindowSec:   k.Int("ratelimit.window.sec"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(k.String("cors.allowed.origins")),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "devforce"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "devforce"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.0-flash"
	}
	if cfg.Gemini.EmbeddingModel == "" {
		cfg.Gemini.EmbeddingModel = "text-embedding-004"
	}
	if !k.Exists("gemini.temperature") {
		cfg.Gemini.Temperature = 2.0
	}
	if cfg.Persona.Path == "" {
		cfg.Persona.Path = "config/persona.txt"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 6
	}
	if cfg.Retrieval.KeywordLimit == 0 {
		cfg.Retrieval.KeywordLimit = 6
	}
	if cfg.Chat.HistoryLimit == 0 {
		cfg.Chat.HistoryLimit = 10
	}
	if cfg.Chat.SessionAckResponse == "" {
		cfg.Chat.SessionAckResponse = "Understood. I will follow these instructions for the rest of our conversation."
	}
	if cfg.Session.MaxMessages == 0 {
		cfg.Session.MaxMessages = 40
	}
	if cfg.RateLimit.MaxRequests == 0 {
		cfg.RateLimit.MaxRequests = 30
	}
	if cfg.RateLimit.WindowSec == 0 {
		cfg.RateLimit.WindowSec = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	cfg.Retrieval.Corrections, err = parseCorrections(k.String("retrieval.corrections"))
	if err != nil {
		return nil, fmt.Errorf("parsing retrieval corrections: %w", err)
	}

	// Parse durations
	if cfg.Retrieval.Timeout, err = parseDuration(k.String("retrieval.timeout"), "8s"); err != nil {
		return nil, fmt.Errorf("parsing retrieval timeout: %w", err)
	}
	if cfg.Chat.GenerationTimeout, err = parseDuration(k.String("chat.generation.timeout"), "60s"); err != nil {
		return nil, fmt.Errorf("parsing generation timeout: %w", err)
	}
	if cfg.Session.TTL, err = parseDuration(k.String("session.ttl"), "1h"); err != nil {
		return nil, fmt.Errorf("parsing session ttl: %w", err)
	}

	return cfg, nil
}

// envKey maps GEMINI_API_KEY to gemini.api.key.
func envKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", "."))
}

// DefaultCorrections is the term-correction table used when
// RETRIEVAL_CORRECTIONS is unset.
func DefaultCorrections() map[string]string {
	return map[string]string{"tution": "tuition"}
}

func parseCorrections(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultCorrections(), nil
	}
	out := make(map[string]string)
	for _, pair := range splitList(raw) {
		from, to, ok := strings.Cut(pair, "=")
		from, to = strings.ToLower(strings.TrimSpace(from)), strings.ToLower(strings.TrimSpace(to))
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("invalid correction %q, want from=to", pair)
		}
		out[from] = to
	}
	return out, nil
}

func parseDuration(raw, fallback string) (time.Duration, error) {
	if raw == "" {
		raw = fallback
	}
	return time.ParseDuration(raw)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
