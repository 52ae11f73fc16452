package vectordb

import (
	"context"
)

// Provider enumerates supported vector database backends.
type Provider string

const (
	ProviderMemory     Provider = "memory"
	ProviderFilesystem Provider = "filesystem"
	ProviderPGVector   Provider = "pgvector"
	ProviderQdrant     Provider = "qdrant"
)

const defaultTopK = 5

// Record represents a chunk persisted to the vector store.
type Record struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]any
}

// SearchOptions controls similarity search execution. A match must score
// strictly above MinScore.
type SearchOptions struct {
	TopK     int
	MinScore float64
}

// Match captures a similarity search result. Score is cosine similarity.
type Match struct {
	ID       string
	Score    float64
	Text     string
	Metadata map[string]any
}

// Store is append-only: records are upserted by ID and never deleted.
// Implementations are safe for concurrent use.
type Store interface {
	Upsert(ctx context.Context, records []Record) error
	// Search returns matches ordered by score descending, ties broken by ID.
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error)
	Count(ctx context.Context) (int, error)
	Close(ctx context.Context) error
}

// Config captures normalized connection details for a vector database.
type Config struct {
	ID          string
	Provider    Provider
	DSN         string
	URL         string
	APIKey      string
	Path        string
	Table       string
	Collection  string
	EnsureIndex bool
	Dimension   int
}
