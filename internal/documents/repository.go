package documents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// Repository defines document persistence operations.
type Repository interface {
	SearchSimilar(ctx context.Context, embedding []float32, limit int) ([]Match, error)
	SearchKeyword(ctx context.Context, terms []string, limit int) ([]Document, error)
	ReplaceSource(ctx context.Context, source string, docs []Document) error
	CountBySource(ctx context.Context, source string) (int64, error)
}

// PostgresRepository implements Repository using pgx + pgvector.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new document repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// SearchSimilar returns up to limit documents ordered by cosine similarity,
// most similar first.
func (r *PostgresRepository) SearchSimilar(ctx context.Context, embedding []float32, limit int) ([]Match, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := r.pool.Query(ctx,
		`SELECT id, content, metadata, created_at, 1 - (embedding <=> $1) AS similarity
		 FROM documents
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		vec, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching similar documents: %w", err)
	}
	defer rows.Close()

	var results []Match
	for rows.Next() {
		var d Document
		var similarity float64
		if err := rows.Scan(&d.ID, &d.Content, &d.Metadata, &d.CreatedAt, &similarity); err != nil {
			return nil, fmt.Errorf("scanning similar document: %w", err)
		}
		results = append(results, Match{Document: d, Similarity: similarity})
	}
	return results, rows.Err()
}

// SearchKeyword returns up to limit documents whose content contains any of
// the terms, case-insensitively, in the order the store returns them.
func (r *PostgresRepository) SearchKeyword(ctx context.Context, terms []string, limit int) ([]Document, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	patterns := make([]string, len(terms))
	for i, t := range terms {
		patterns[i] = "%" + t + "%"
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, content, metadata, created_at
		 FROM documents
		 WHERE content ILIKE ANY($1)
		 LIMIT $2`,
		patterns, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching documents by keyword: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Content, &d.Metadata, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning keyword document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ReplaceSource deletes every document sharing source and inserts docs in
// their place, atomically.
func (r *PostgresRepository) ReplaceSource(ctx context.Context, source string, docs []Document) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE metadata->>'source' = $1`, source); err != nil {
		return fmt.Errorf("deleting documents for %s: %w", source, err)
	}

	batch := &pgx.Batch{}
	for i := range docs {
		d := &docs[i]
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		d.Metadata.Source = source

		metadata, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}

		if len(d.Embedding) > 0 {
			batch.Queue(
				`INSERT INTO documents (id, content, metadata, embedding) VALUES ($1, $2, $3, $4)`,
				d.ID, d.Content, metadata, pgvector.NewVector(d.Embedding),
			)
		} else {
			batch.Queue(
				`INSERT INTO documents (id, content, metadata) VALUES ($1, $2, $3)`,
				d.ID, d.Content, metadata,
			)
		}
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting documents for %s: %w", source, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing documents for %s: %w", source, err)
	}
	return nil
}

// CountBySource returns the number of stored chunks for source.
func (r *PostgresRepository) CountBySource(ctx context.Context, source string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE metadata->>'source' = $1`,
		source,
	).Scan(&count)
	return count, err
}
