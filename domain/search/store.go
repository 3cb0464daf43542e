package search

import (
	"context"

	"github.com/codelore/codelore/domain/repo"
)

// Embedder converts text into embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// LexicalStore defines operations for keyword full-text indexing.
type LexicalStore interface {
	// Index adds or replaces documents in the lexical index.
	Index(ctx context.Context, request IndexRequest) error

	// Find performs keyword search. Query text is passed via WithQuery,
	// filters via WithFilters. Scores are higher-is-better.
	Find(ctx context.Context, options ...repo.Option) ([]Result, error)

	// DeleteBy removes documents matching the given options.
	DeleteBy(ctx context.Context, options ...repo.Option) error
}

// VectorStore defines operations for embedding similarity search.
type VectorStore interface {
	// Index embeds and stores documents. Batch progress and failure
	// callbacks are passed through options.
	Index(ctx context.Context, request IndexRequest, options ...IndexOption) error

	// Find performs similarity search. Query text is passed via WithQuery
	// or a pre-computed vector via WithEmbedding; filters via WithFilters.
	Find(ctx context.Context, options ...repo.Option) ([]Result, error)

	// HasEmbeddings reports which of the given document ids already have
	// stored embeddings.
	HasEmbeddings(ctx context.Context, documentIDs []string) (map[string]bool, error)

	// DeleteBy removes documents matching the given options.
	DeleteBy(ctx context.Context, options ...repo.Option) error
}

// DocumentStore persists document payloads so search hits can be resolved
// back to full documents.
type DocumentStore interface {
	// Upsert adds or replaces documents keyed by id.
	Upsert(ctx context.Context, documents []Document) error

	// ByIDs returns the documents for the given ids, omitting missing ones.
	ByIDs(ctx context.Context, ids []string) ([]Document, error)

	// Find returns documents matching the given options.
	Find(ctx context.Context, options ...repo.Option) ([]Document, error)

	// DeleteBy removes documents matching the given options.
	DeleteBy(ctx context.Context, options ...repo.Option) error
}
