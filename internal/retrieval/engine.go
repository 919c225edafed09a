// Package retrieval looks up background passages for a user message,
// trying vector similarity first and falling back to keyword matching.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sdrc-devforce/devforce/internal/documents"
	"github.com/sdrc-devforce/devforce/internal/metrics"
)

// Provenance records which tier produced a Result.
type Provenance string

const (
	ProvenanceVector  Provenance = "vector"
	ProvenanceKeyword Provenance = "keyword"
	ProvenanceNone    Provenance = "none"
)

// Embedder turns text into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher returns documents ranked by similarity to a vector.
type VectorSearcher interface {
	SearchSimilar(ctx context.Context, embedding []float32, limit int) ([]documents.Match, error)
}

// KeywordSearcher returns documents containing any of the given terms.
type KeywordSearcher interface {
	SearchKeyword(ctx context.Context, terms []string, limit int) ([]documents.Document, error)
}

// Result is the outcome of one retrieval. Provenance is set once and
// decides how passages are rendered.
type Result struct {
	Passages   []string
	Provenance Provenance
	// Degraded is set when a tier failed and the result fell back.
	Degraded bool
}

// Text renders the passages as a context block.
func (r Result) Text() string {
	if len(r.Passages) == 0 {
		return ""
	}
	format := "[#%d] %s"
	if r.Provenance == ProvenanceKeyword {
		format = "[#T %d] %s"
	}
	parts := make([]string, len(r.Passages))
	for i, p := range r.Passages {
		parts[i] = fmt.Sprintf(format, i+1, p)
	}
	return strings.Join(parts, "\n\n")
}

// Options configures an Engine. Zero values fall back to defaults.
type Options struct {
	TopK         int
	KeywordLimit int
	Timeout      time.Duration
	Corrections  map[string]string
}

// Engine runs tiered retrieval. Any collaborator may be nil, which
// disables the tier that needs it.
type Engine struct {
	embedder Embedder
	vectors  VectorSearcher
	keywords KeywordSearcher
	opts     Options
}

// NewEngine creates an Engine.
func NewEngine(embedder Embedder, vectors VectorSearcher, keywords KeywordSearcher, opts Options) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = 6
	}
	if opts.KeywordLimit <= 0 {
		opts.KeywordLimit = 6
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.Corrections == nil {
		opts.Corrections = map[string]string{}
	}
	return &Engine{
		embedder: embedder,
		vectors:  vectors,
		keywords: keywords,
		opts:     opts,
	}
}

// Retrieve finds passages for query. It never fails: collaborator errors
// are logged and the engine falls through to the next tier, ending with an
// empty result.
func (e *Engine) Retrieve(ctx context.Context, query string) Result {
	res := e.retrieve(ctx, query)
	metrics.RetrievalsTotal.WithLabelValues(string(res.Provenance)).Inc()
	return res
}

func (e *Engine) retrieve(ctx context.Context, query string) Result {
	degraded := false

	if e.embedder != nil && e.vectors != nil {
		passages, err := e.vectorTier(ctx, query)
		switch {
		case err != nil:
			degraded = true
			metrics.RetrievalErrorsTotal.WithLabelValues(string(ProvenanceVector)).Inc()
			slog.Warn("retrieval: vector search failed, trying keywords", "error", err)
		case len(passages) > 0:
			return Result{Passages: passages, Provenance: ProvenanceVector}
		}
	}

	if ctx.Err() != nil {
		return Result{Provenance: ProvenanceNone, Degraded: true}
	}

	if e.keywords != nil {
		terms := ExtractTerms(query, e.opts.Corrections)
		if len(terms) > 0 {
			passages, err := e.keywordTier(ctx, terms)
			switch {
			case err != nil:
				degraded = true
				metrics.RetrievalErrorsTotal.WithLabelValues(string(ProvenanceKeyword)).Inc()
				slog.Warn("retrieval: keyword search failed", "error", err, "terms", terms)
			case len(passages) > 0:
				return Result{Passages: passages, Provenance: ProvenanceKeyword, Degraded: degraded}
			}
		}
	}

	return Result{Provenance: ProvenanceNone, Degraded: degraded}
}

func (e *Engine) vectorTier(ctx context.Context, query string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vec) == 0 {
		return nil, nil
	}

	matches, err := e.vectors.SearchSimilar(ctx, vec, e.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	passages := make([]string, 0, len(matches))
	for _, m := range matches {
		passages = append(passages, m.Document.Content)
	}
	return passages, nil
}

func (e *Engine) keywordTier(ctx context.Context, terms []string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	docs, err := e.keywords.SearchKeyword(ctx, terms, e.opts.KeywordLimit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	passages := make([]string, 0, len(docs))
	for _, d := range docs {
		passages = append(passages, d.Content)
	}
	return passages, nil
}
