package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/search"
	"github.com/codelore/codelore/internal/database"
	"gorm.io/gorm/clause"
)

// embedBatchSize is how many documents are embedded per provider call.
const embedBatchSize = 32

// NewVectorStore creates the embedding index matching the database driver:
// JSON vectors with in-process cosine ranking on SQLite, pgvector on
// PostgreSQL.
func NewVectorStore(ctx context.Context, db database.Database, embedder search.Embedder, dimension int, logger *slog.Logger) (search.VectorStore, error) {
	if db.IsPostgres() {
		return NewPgVectorStore(ctx, db, embedder, dimension, logger)
	}
	return NewSQLiteVectorStore(db, embedder, logger), nil
}

// SQLiteVectorStore implements search.VectorStore storing embeddings as JSON
// and ranking by cosine similarity in-process. Fine for the corpus sizes a
// single SQLite deployment holds.
type SQLiteVectorStore struct {
	db       database.Database
	embedder search.Embedder
	logger   *slog.Logger
}

// NewSQLiteVectorStore creates a new SQLiteVectorStore.
func NewSQLiteVectorStore(db database.Database, embedder search.Embedder, logger *slog.Logger) *SQLiteVectorStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteVectorStore{
		db:       db,
		embedder: embedder,
		logger:   logger,
	}
}

// Index embeds and stores documents in batches. A failed batch is reported
// through the batch error callback and skipped; later batches still run so
// one provider hiccup cannot void a whole indexing run.
func (s *SQLiteVectorStore) Index(ctx context.Context, request search.IndexRequest, options ...search.IndexOption) error {
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

		vectors, err := s.embedBatch(ctx, batch)
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

func (s *SQLiteVectorStore) embedBatch(ctx context.Context, batch []search.Document) ([][]float64, error) {
	texts := make([]string, len(batch))
	for i, doc := range batch {
		texts[i] = embeddingText(doc)
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(batch))
	}
	return vectors, nil
}

func (s *SQLiteVectorStore) saveBatch(ctx context.Context, batch []search.Document, vectors [][]float64) error {
	now := time.Now().UTC()
	models := make([]EmbeddingModel, len(batch))
	for i, doc := range batch {
		models[i] = EmbeddingModel{
			DocumentID:   doc.ID(),
			RepositoryID: doc.RepositoryID(),
			Kind:         doc.Kind().String(),
			Embedding:    toJSON(vectors[i]),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	result := s.db.Session(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"repository_id", "kind", "embedding", "updated_at"}),
	}).Create(&models)
	if result.Error != nil {
		return fmt.Errorf("save embeddings: %w", result.Error)
	}
	return nil
}

// Find performs similarity search. The query arrives as text (embedded here)
// or as a pre-computed vector.
func (s *SQLiteVectorStore) Find(ctx context.Context, options ...repo.Option) ([]search.Result, error) {
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

	vectors, err := s.loadVectors(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return []search.Result{}, nil
	}

	var matches []SimilarityMatch
	if ids := search.DocumentIDsFrom(q); len(ids) > 0 {
		allowed := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			allowed[id] = struct{}{}
		}
		matches = TopKSimilarFiltered(queryEmbedding, vectors, limit, allowed)
	} else {
		matches = TopKSimilar(queryEmbedding, vectors, limit)
	}

	results := make([]search.Result, len(matches))
	for i, m := range matches {
		results[i] = search.NewResult(m.DocumentID(), m.Similarity())
	}
	return results, nil
}

func (s *SQLiteVectorStore) queryEmbedding(ctx context.Context, q repo.Query) ([]float64, error) {
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

func (s *SQLiteVectorStore) loadVectors(ctx context.Context, q repo.Query) ([]StoredVector, error) {
	db := s.db.Session(ctx).Model(&EmbeddingModel{})
	if filters, ok := search.FiltersFrom(q); ok {
		if ids := filters.RepositoryIDs(); len(ids) > 0 {
			db = db.Where("repository_id IN ?", ids)
		}
		if kinds := filters.Kinds(); len(kinds) > 0 {
			values := make([]string, len(kinds))
			for i, k := range kinds {
				values[i] = k.String()
			}
			db = db.Where("kind IN ?", values)
		}
	}

	var models []EmbeddingModel
	if result := db.Find(&models); result.Error != nil {
		return nil, fmt.Errorf("load embeddings: %w", result.Error)
	}

	vectors := make([]StoredVector, 0, len(models))
	for _, model := range models {
		embedding := fromJSON[[]float64](model.Embedding)
		if len(embedding) == 0 {
			s.logger.Warn("skipping empty embedding", "document_id", model.DocumentID)
			continue
		}
		vectors = append(vectors, NewStoredVector(model.DocumentID, embedding))
	}
	return vectors, nil
}

// HasEmbeddings reports which of the given document ids already have stored
// embeddings.
func (s *SQLiteVectorStore) HasEmbeddings(ctx context.Context, documentIDs []string) (map[string]bool, error) {
	return hasEmbeddings(ctx, s.db, "embeddings", documentIDs)
}

// DeleteBy removes embeddings matching the given options.
func (s *SQLiteVectorStore) DeleteBy(ctx context.Context, options ...repo.Option) error {
	db := database.ApplyOptions(s.db.Session(ctx), options...)
	if result := db.Delete(&EmbeddingModel{}); result.Error != nil {
		return fmt.Errorf("delete embeddings: %w", result.Error)
	}
	return nil
}

// embeddingText builds the text sent to the embedder: the title gives short
// documents context the raw content lacks.
func embeddingText(doc search.Document) string {
	if title := doc.Title(); title != "" {
		return title + "\n\n" + doc.Content()
	}
	return doc.Content()
}

// hasEmbeddings answers membership for a set of document ids against any
// embedding table.
func hasEmbeddings(ctx context.Context, db database.Database, table string, documentIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(documentIDs))
	if len(documentIDs) == 0 {
		return result, nil
	}

	var found []string
	err := db.Session(ctx).
		Table(table).
		Where("document_id IN ?", documentIDs).
		Pluck("document_id", &found).Error
	if err != nil {
		return nil, fmt.Errorf("check embeddings: %w", err)
	}

	for _, id := range documentIDs {
		result[id] = false
	}
	for _, id := range found {
		result[id] = true
	}
	return result, nil
}
