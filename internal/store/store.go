// Package store provides chunk storage backends for memory search: a
// sqlite-vec vector store for semantic search and a Bleve BM25 store for
// keyless lexical search.
package store

import "context"

// Document types stored in the index.
const (
	DocTypeMarkdown = "markdown"
	DocTypeSession  = "session"
	DocTypeFlush    = "flush"
)

// Record is one indexed chunk.
type Record struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	Source       string    `json:"source"`
	Heading      string    `json:"heading,omitempty"`
	Hash         string    `json:"chunk_hash"`
	HeadingLevel int       `json:"heading_level"`
	StartLine    int       `json:"start_line"`
	EndLine      int       `json:"end_line"`
	DocType      string    `json:"doc_type"`
	Embedding    []float32 `json:"-"`
}

// Result is a record with its relevance score, 0-1, higher is better.
type Result struct {
	Record
	Score float32 `json:"score"`
}

// Query describes one search. Vector backends use Embedding; lexical
// backends use Text. DocType and Source filter when non-empty.
type Query struct {
	Text      string
	Embedding []float32
	TopK      int
	DocType   string
	Source    string
}

// Store is the chunk storage interface.
type Store interface {
	// Upsert inserts records, replacing existing records with the same
	// chunk hash. Returns the number of records written.
	Upsert(ctx context.Context, records []Record) (int, error)

	// Search returns the top-K most relevant records, best first.
	Search(ctx context.Context, q Query) ([]Result, error)

	// List enumerates stored records, optionally filtered by source.
	List(ctx context.Context, source string, limit int) ([]Result, error)

	// DeleteBySource removes all records from one source file.
	DeleteBySource(ctx context.Context, source string) error

	// DeleteByHashes removes records by chunk hash.
	DeleteByHashes(ctx context.Context, hashes []string) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)

	// Drop deletes all indexed data. The store is unusable afterwards.
	Drop(ctx context.Context) error

	// RequiresVectors reports whether Search needs Query.Embedding.
	RequiresVectors() bool

	Close() error
}
