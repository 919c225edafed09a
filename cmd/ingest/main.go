package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sdrc-devforce/devforce/internal/config"
	"github.com/sdrc-devforce/devforce/internal/database"
	"github.com/sdrc-devforce/devforce/internal/documents"
	"github.com/sdrc-devforce/devforce/internal/events"
	"github.com/sdrc-devforce/devforce/internal/gemini"
	"github.com/sdrc-devforce/devforce/internal/ingest"
	"github.com/sdrc-devforce/devforce/internal/logging"
)

var (
	sitesPath    string
	concurrency  int
	chunkSize    int
	chunkOverlap int
)

var rootCmd = &cobra.Command{
	Use:           "ingest",
	Short:         "Scrape configured websites into the document store",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, split, embed and store every configured site",
	Long: `Fetches each URL listed in the sites file, extracts its visible text,
splits it into overlapping chunks, embeds the chunks and replaces the
stored chunks of that source. One failing site does not stop the others.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&sitesPath, "sites", "config/websites.json", "JSON array of URLs to ingest")
	runCmd.Flags().IntVar(&concurrency, "concurrency", 4, "sites processed in parallel")
	runCmd.Flags().IntVar(&chunkSize, "chunk-size", 1000, "maximum characters per chunk")
	runCmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 200, "characters shared by neighbouring chunks")
	rootCmd.AddCommand(runCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

func runIngest(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logging.Setup(cfg.Log)

	sources, err := ingest.LoadSources(sitesPath)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		slog.Info("No websites configured", "sites", sitesPath)
		return nil
	}

	if !cfg.DB.Enabled() {
		return errors.New("DB_HOST is required for ingestion")
	}
	pool, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	genaiClient, err := gemini.NewClient(ctx, cfg.Gemini.APIKey)
	if err != nil {
		return err
	}
	embedder := gemini.NewEmbedder(genaiClient, cfg.Gemini.EmbeddingModel, gemini.TaskRetrievalDocument)

	var publisher ingest.EventPublisher
	if cfg.NATS.Enabled() {
		natsClient, err := events.NewClient(ctx, cfg.NATS)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer natsClient.Close()
		publisher = events.NewPublisher(natsClient.JetStream())
	}

	pipeline := ingest.NewPipeline(
		ingest.NewHTTPFetcher(nil),
		ingest.NewSplitter(chunkSize, chunkOverlap),
		embedder,
		documents.NewPostgresRepository(pool),
		publisher,
		concurrency,
	)

	results := pipeline.Run(ctx, sources)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	slog.Info("ingestion finished", "sources", len(results), "failed", failed)
	if failed == len(results) {
		return fmt.Errorf("all %d sources failed", failed)
	}
	return nil
}
