package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/search"
	"github.com/codelore/codelore/internal/database"
	"gorm.io/gorm"
)

// SQL statements for the pgvector embedding index.
const (
	pgvCreateExtension = `CREATE EXTENSION IF NOT EXISTS vector`

	pgvCreateTableTemplate = `
CREATE TABLE IF NOT EXISTS codelore_embeddings (
    id SERIAL PRIMARY KEY,
    document_id VARCHAR(255) NOT NULL UNIQUE,
    repository_id BIGINT NOT NULL DEFAULT 0,
    kind VARCHAR(32) NOT NULL DEFAULT '',
    embedding VECTOR(%d) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

	pgvCreateIndex = `
CREATE INDEX IF NOT EXISTS codelore_embeddings_idx
ON codelore_embeddings
USING ivfflat (embedding vector_cosine_ops)
WITH (lists = 100)`

	pgvCreateRepoIndex = `
CREATE INDEX IF NOT EXISTS codelore_embeddings_repo_idx
ON codelore_embeddings (repository_id)`

	pgvCheckDimension = `
SELECT a.atttypmod as dimension
FROM pg_attribute a
JOIN pg_class c ON a.attrelid = c.oid
WHERE c.relname = 'codelore_embeddings'
AND a.attname = 'embedding'`

	pgvUpsertQuery = `
INSERT INTO codelore_embeddings (document_id, repository_id, kind, embedding, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (document_id) DO UPDATE
SET repository_id = EXCLUDED.repository_id,
    kind = EXCLUDED.kind,
    embedding = EXCLUDED.embedding,
    updated_at = EXCLUDED.updated_at`
)

// ErrPgVectorInitializationFailed indicates pgvector initialization failed.
var ErrPgVectorInitializationFailed = errors.New("failed to initialize pgvector store")

// ErrDimensionMismatch indicates the embedding dimension doesn't match the
// database table.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// PgVectorStore implements search.VectorStore using the PostgreSQL pgvector
// extension with cosine distance ranking in SQL.
type PgVectorStore struct {
	db       database.Database
	embedder search.Embedder
	logger   *slog.Logger
}

// NewPgVectorStore creates a new PgVectorStore, eagerly initializing the
// extension, table, and index, and verifying the stored dimension matches
// the provider's.
func NewPgVectorStore(ctx context.Context, db database.Database, embedder search.Embedder, dimension int, logger *slog.Logger) (*PgVectorStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PgVectorStore{
		db:       db,
		embedder: embedder,
		logger:   logger,
	}

	rawDB := db.Session(ctx)

	if err := rawDB.Exec(pgvCreateExtension).Error; err != nil {
		return nil, errors.Join(ErrPgVectorInitializationFailed, fmt.Errorf("create extension: %w", err))
	}

	// Dynamic dimension requires raw SQL.
	if err := rawDB.Exec(fmt.Sprintf(pgvCreateTableTemplate, dimension)).Error; err != nil {
		return nil, errors.Join(ErrPgVectorInitializationFailed, fmt.Errorf("create table: %w", err))
	}

	if err := rawDB.Exec(pgvCreateIndex).Error; err != nil {
		logger.Warn("failed to create ivfflat index (may already exist)", "error", err)
	}
	if err := rawDB.Exec(pgvCreateRepoIndex).Error; err != nil {
		return nil, errors.Join(ErrPgVectorInitializationFailed, fmt.Errorf("create repository index: %w", err))
	}

	var dbDimension int
	result := rawDB.Raw(pgvCheckDimension).Scan(&dbDimension)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, errors.Join(ErrPgVectorInitializationFailed, fmt.Errorf("check dimension: %w", result.Error))
	}
	if result.RowsAffected > 0 && dbDimension != dimension {
		return nil, fmt.Errorf("%w: database has %d, provider has %d — if you switched embedding providers, drop codelore_embeddings and re-index", ErrDimensionMismatch, dbDimension, dimension)
	}

	return s, nil
}

// Index embeds and stores documents in batches. Failed batches are reported
// through the batch error callback and skipped.
func (s *PgVectorStore) Index(ctx context.Context, request search.IndexRequest, options ...search.IndexOption) error {
	cfg := search.NewIndexConfig(options...)

	valid := indexableDocuments(request)
	if len(valid) == 0 {
		s.logger.Warn("corpus is empty, skipping vector index")
		return nil
	}

	total := len(valid)
	var lastErr error
	failed := 0

	for start := 0; start < total; start += embedBatchSize {
		end := min(start+embedBatchSize, total)
		batch := valid[start:end]

		texts := make([]string, len(batch))
		for i, doc := range batch {
			texts[i] = embeddingText(doc)
		}

		vectors, err := s.embedder.Embed(ctx, texts)
		if err == nil && len(vectors) != len(batch) {
			err = fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(batch))
		}
		if err != nil {
			lastErr = err
			failed += len(batch)
			if cb := cfg.BatchError(); cb != nil {
				cb(start, end, err)
			}
			continue
		}

		if err := s.saveBatch(ctx, batch, vectors); err != nil {
			return err
		}
		if cb := cfg.Progress(); cb != nil {
			cb(end-failed, total)
		}
	}

	if failed == total {
		return fmt.Errorf("embed documents: %w", lastErr)
	}
	return nil
}

func (s *PgVectorStore) saveBatch(ctx context.Context, batch []search.Document, vectors [][]float64) error {
	now := time.Now().UTC()
	return s.db.Session(ctx).Transaction(func(tx *gorm.DB) error {
		for i, doc := range batch {
			err := tx.Exec(pgvUpsertQuery,
				doc.ID(),
				doc.RepositoryID(),
				doc.Kind().String(),
				database.NewVector(vectors[i]).String(),
				now,
			).Error
			if err != nil {
				return fmt.Errorf("save embedding %s: %w", doc.ID(), err)
			}
		}
		return nil
	})
}

// Find performs cosine-distance similarity search in SQL, best matches
// first.
func (s *PgVectorStore) Find(ctx context.Context, options ...repo.Option) ([]search.Result, error) {
	q := repo.Build(options...)

	queryEmbedding, err := s.queryEmbedding(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(queryEmbedding) == 0 {
		return []search.Result{}, nil
	}

	limit := q.LimitValue()
	if limit <= 0 {
		limit = 10
	}

	tx := s.db.Session(ctx).
		Table("codelore_embeddings").
		Select("document_id, embedding <=> ? as score", database.NewVector(queryEmbedding).String())

	if ids := search.DocumentIDsFrom(q); len(ids) > 0 {
		tx = tx.Where("document_id IN ?", ids)
	}
	if filters, ok := search.FiltersFrom(q); ok {
		if ids := filters.RepositoryIDs(); len(ids) > 0 {
			tx = tx.Where("repository_id IN ?", ids)
		}
		if kinds := filters.Kinds(); len(kinds) > 0 {
			values := make([]string, len(kinds))
			for i, k := range kinds {
				values[i] = k.String()
			}
			tx = tx.Where("kind IN ?", values)
		}
	}

	tx = tx.Order("score ASC").Limit(limit)

	var rows []struct {
		DocumentID string  `gorm:"column:document_id"`
		Score      float64 `gorm:"column:score"`
	}
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, err
	}

	results := make([]search.Result, len(rows))
	for i, row := range rows {
		// Cosine distance: 0 = identical, 2 = opposite. Convert to a 0-1
		// similarity.
		results[i] = search.NewResult(row.DocumentID, 1.0-row.Score/2.0)
	}
	return results, nil
}

func (s *PgVectorStore) queryEmbedding(ctx context.Context, q repo.Query) ([]float64, error) {
	if embedding, ok := search.EmbeddingFrom(q); ok && len(embedding) > 0 {
		return embedding, nil
	}

	text, ok := search.QueryFrom(q)
	if !ok || text == "" {
		return nil, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	return vectors[0], nil
}

// HasEmbeddings reports which of the given document ids already have stored
// embeddings.
func (s *PgVectorStore) HasEmbeddings(ctx context.Context, documentIDs []string) (map[string]bool, error) {
	return hasEmbeddings(ctx, s.db, "codelore_embeddings", documentIDs)
}

// DeleteBy removes embeddings by document id or repository id conditions.
func (s *PgVectorStore) DeleteBy(ctx context.Context, options ...repo.Option) error {
	q := repo.Build(options...)

	if ids := search.DocumentIDsFrom(q); len(ids) > 0 {
		return s.db.Session(ctx).Exec(`DELETE FROM codelore_embeddings WHERE document_id IN ?`, ids).Error
	}
	if repoIDs := repositoryIDsFrom(q); len(repoIDs) > 0 {
		return s.db.Session(ctx).Exec(`DELETE FROM codelore_embeddings WHERE repository_id IN ?`, repoIDs).Error
	}
	return nil
}
