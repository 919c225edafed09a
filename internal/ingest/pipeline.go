// Package ingest scrapes configured web pages into the document store:
// fetch, extract text, split, embed and replace the source's chunks.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sdrc-devforce/devforce/internal/documents"
	"github.com/sdrc-devforce/devforce/internal/events"
	"github.com/sdrc-devforce/devforce/internal/metrics"
)

// ErrNoContent is returned for a page without any extractable text.
var ErrNoContent = errors.New("page has no text content")

// BatchEmbedder embeds many texts at once, preserving order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Store atomically replaces every chunk of a source.
type Store interface {
	ReplaceSource(ctx context.Context, source string, docs []documents.Document) error
}

// EventPublisher receives one event per ingested source.
type EventPublisher interface {
	PublishIngest(ctx context.Context, event events.IngestEvent) error
}

// Result is the outcome for one source.
type Result struct {
	Source string
	Chunks int
	Err    error
}

// Pipeline ingests sources concurrently. One failing source never aborts
// the others.
type Pipeline struct {
	fetcher     Fetcher
	splitter    *Splitter
	embedder    BatchEmbedder
	store       Store
	publisher   EventPublisher
	concurrency int
}

// NewPipeline creates a Pipeline. publisher may be nil.
func NewPipeline(fetcher Fetcher, splitter *Splitter, embedder BatchEmbedder, store Store, publisher EventPublisher, concurrency int) *Pipeline {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Pipeline{
		fetcher:     fetcher,
		splitter:    splitter,
		embedder:    embedder,
		store:       store,
		publisher:   publisher,
		concurrency: concurrency,
	}
}

// Run ingests every source and returns one Result per source, in input
// order.
func (p *Pipeline) Run(ctx context.Context, sources []string) []Result {
	results := make([]Result, len(sources))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, source := range sources {
		g.Go(func() error {
			slog.Info("scraping and processing", "source", source)
			n, err := p.Ingest(ctx, source)
			results[i] = Result{Source: source, Chunks: n, Err: err}
			if err != nil {
				slog.Error("failed to scrape or vectorize", "source", source, "error", err)
				metrics.DocumentsIngestedTotal.WithLabelValues("error").Inc()
			} else {
				slog.Info("scraped and vectorized", "source", source, "chunks", n)
				metrics.DocumentsIngestedTotal.WithLabelValues("success").Add(float64(n))
			}
			p.publish(ctx, results[i])
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Ingest processes one source and returns the number of chunks stored.
func (p *Pipeline) Ingest(ctx context.Context, source string) (int, error) {
	text, err := p.fetcher.Fetch(ctx, source)
	if err != nil {
		return 0, err
	}
	chunks := p.splitter.Split(text)
	if len(chunks) == 0 {
		return 0, ErrNoContent
	}

	vectors, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding %s: %w", source, err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedding %s: got %d vectors for %d chunks", source, len(vectors), len(chunks))
	}

	docs := make([]documents.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = documents.Document{
			Content:   chunk,
			Metadata:  documents.Metadata{Source: source, Chunk: i},
			Embedding: vectors[i],
		}
	}

	if err := p.store.ReplaceSource(ctx, source, docs); err != nil {
		return 0, fmt.Errorf("storing %s: %w", source, err)
	}
	return len(docs), nil
}

func (p *Pipeline) publish(ctx context.Context, res Result) {
	if p.publisher == nil {
		return
	}
	event := events.IngestEvent{
		EventType: events.TypeIngestCompleted,
		Source:    res.Source,
		Chunks:    res.Chunks,
		Timestamp: time.Now().UTC(),
	}
	if res.Err != nil {
		event.Error = res.Err.Error()
	}
	if err := p.publisher.PublishIngest(ctx, event); err != nil {
		slog.Warn("publishing ingest event", "source", res.Source, "error", err)
	}
}

// LoadSources reads a JSON array of URLs. Blank entries are dropped.
func LoadSources(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sites file: %w", err)
	}

	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("sites file %s must be a JSON array of URLs: %w", path, err)
	}

	sources := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			sources = append(sources, s)
		}
	}
	return sources, nil
}
