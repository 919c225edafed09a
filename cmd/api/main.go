package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sdrc-devforce/devforce/internal/api"
	"github.com/sdrc-devforce/devforce/internal/chat"
	"github.com/sdrc-devforce/devforce/internal/config"
	"github.com/sdrc-devforce/devforce/internal/database"
	"github.com/sdrc-devforce/devforce/internal/documents"
	"github.com/sdrc-devforce/devforce/internal/events"
	"github.com/sdrc-devforce/devforce/internal/gemini"
	"github.com/sdrc-devforce/devforce/internal/llm"
	"github.com/sdrc-devforce/devforce/internal/logging"
	"github.com/sdrc-devforce/devforce/internal/middleware"
	"github.com/sdrc-devforce/devforce/internal/persona"
	iredis "github.com/sdrc-devforce/devforce/internal/redis"
	"github.com/sdrc-devforce/devforce/internal/retrieval"
	"github.com/sdrc-devforce/devforce/internal/server"
	"github.com/sdrc-devforce/devforce/internal/session"
)

// writeMargin is added to the retrieval and generation budgets when
// sizing the server write timeout.
const writeMargin = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := persona.Load(cfg.Persona.Path, cfg.Persona.Text)
	if err != nil {
		slog.Error("loading persona", "error", err)
		os.Exit(1)
	}

	// Gemini
	genaiClient, err := gemini.NewClient(ctx, cfg.Gemini.APIKey)
	if err != nil {
		slog.Error("creating gemini client", "error", err)
		os.Exit(1)
	}
	generator := gemini.NewGenerator(genaiClient, cfg.Gemini.Model)

	routerCfg := api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		Dependencies:       []string{"database", "redis", "nats"},
	}

	// PostgreSQL (optional): backs both retrieval tiers.
	var vectors retrieval.VectorSearcher
	var keywords retrieval.KeywordSearcher
	var embedder retrieval.Embedder
	var auditStore events.AuditStore
	if cfg.DB.Enabled() {
		pool, err := database.Open(ctx, cfg.DB)
		if err != nil {
			slog.Error("connecting to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		repo := documents.NewPostgresRepository(pool)
		vectors, keywords = repo, repo
		embedder = gemini.NewEmbedder(genaiClient, cfg.Gemini.EmbeddingModel, gemini.TaskRetrievalQuery)
		auditStore = events.NewAuditRepository(pool)
		routerCfg.Checks = append(routerCfg.Checks, api.HealthCheck{Name: "database", Check: database.HealthCheck(pool)})
	}

	retriever := retrieval.NewEngine(embedder, vectors, keywords, retrieval.Options{
		TopK:         cfg.Retrieval.TopK,
		KeywordLimit: cfg.Retrieval.KeywordLimit,
		Timeout:      cfg.Retrieval.Timeout,
		Corrections:  cfg.Retrieval.Corrections,
	})

	svc := chat.NewService(p.Directive(), retriever, generator, chat.Options{
		HistoryLimit:      cfg.Chat.HistoryLimit,
		GenerationTimeout: cfg.Chat.GenerationTimeout,
		Generation: llm.GenerationConfig{
			Temperature: cfg.Gemini.Temperature,
			Stream:      cfg.Gemini.Stream,
		},
		SessionAck: cfg.Chat.SessionAckResponse,
	})

	// Redis (optional): session memory and rate limiting.
	if cfg.Redis.Enabled() {
		redisClient, err := iredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Error("connecting to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		svc.WithSessions(session.NewStore(redisClient, cfg.Session.TTL, cfg.Session.MaxMessages))
		limiter := middleware.NewRateLimiter(redisClient, "chat", cfg.RateLimit.MaxRequests, cfg.RateLimit.WindowSec)
		routerCfg.ChatRateLimiter = limiter.Middleware
		routerCfg.Checks = append(routerCfg.Checks, api.HealthCheck{Name: "redis", Check: iredis.HealthCheck(redisClient)})
	}

	// NATS (optional): chat events and the audit trail.
	if cfg.NATS.Enabled() {
		natsClient, err := events.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()

		svc.WithPublisher(events.NewPublisher(natsClient.JetStream()))
		routerCfg.Checks = append(routerCfg.Checks, api.HealthCheck{Name: "nats", Check: natsClient.HealthCheck})

		if auditStore != nil {
			consumer := events.NewAuditConsumer(auditStore, natsClient.JetStream())
			go func() {
				if err := consumer.Start(ctx); err != nil {
					slog.Error("audit consumer stopped", "error", err)
				}
			}()
		}
	}

	chatHandler := chat.NewHandler(svc, cfg.Chat.ExposeErrorDetail)
	router := api.NewRouter(routerCfg, api.HandlerSet{
		Submit:         chatHandler.Submit,
		SessionMessage: chatHandler.SessionMessage,
		ClearSession:   chatHandler.ClearSession,
	})

	writeTimeout := cfg.Retrieval.Timeout + cfg.Chat.GenerationTimeout + writeMargin
	srv := server.New(cfg.Server, router, writeTimeout)
	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
