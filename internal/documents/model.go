package documents

import (
	"time"

	"github.com/google/uuid"
)

// Document is a chunk of ingested source text stored with its embedding.
type Document struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Metadata records where a chunk came from.
type Metadata struct {
	Source string `json:"source"`
	Chunk  int    `json:"chunk"`
}

// Match wraps a Document with its cosine similarity to the query.
type Match struct {
	Document   Document `json:"document"`
	Similarity float64  `json:"similarity"`
}
