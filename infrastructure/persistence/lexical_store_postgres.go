package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/search"
	"github.com/codelore/codelore/internal/database"
	"gorm.io/gorm"
)

// SQL statements for the PostgreSQL native full-text keyword index.
const (
	pgCreateLexicalTable = `
CREATE TABLE IF NOT EXISTS codelore_lexical_documents (
    id SERIAL PRIMARY KEY,
    document_id VARCHAR(255) NOT NULL UNIQUE,
    repository_id BIGINT NOT NULL DEFAULT 0,
    kind VARCHAR(32) NOT NULL DEFAULT '',
    language VARCHAR(64) NOT NULL DEFAULT '',
    path TEXT NOT NULL DEFAULT '',
    section_type VARCHAR(64) NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    tsv TSVECTOR
)`

	pgCreateTSVIndex = `
CREATE INDEX IF NOT EXISTS codelore_lexical_documents_tsv_idx
ON codelore_lexical_documents
USING GIN(tsv)`

	pgCreateRepoIndex = `
CREATE INDEX IF NOT EXISTS codelore_lexical_documents_repo_idx
ON codelore_lexical_documents (repository_id)`

	pgCreateTriggerFunction = `
CREATE OR REPLACE FUNCTION codelore_lexical_update_tsv()
RETURNS trigger AS $$
BEGIN
    NEW.tsv := setweight(to_tsvector('english', COALESCE(NEW.title, '')), 'A')
        || setweight(to_tsvector('english', NEW.content), 'B');
    RETURN NEW;
END;
$$ LANGUAGE plpgsql`

	pgCreateTrigger = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM pg_trigger WHERE tgname = 'codelore_lexical_tsv_trigger'
    ) THEN
        CREATE TRIGGER codelore_lexical_tsv_trigger
        BEFORE INSERT OR UPDATE ON codelore_lexical_documents
        FOR EACH ROW EXECUTE FUNCTION codelore_lexical_update_tsv();
    END IF;
END;
$$`

	pgUpsertQuery = `
INSERT INTO codelore_lexical_documents
    (document_id, repository_id, kind, language, path, section_type, title, content)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (document_id) DO UPDATE
SET repository_id = EXCLUDED.repository_id,
    kind = EXCLUDED.kind,
    language = EXCLUDED.language,
    path = EXCLUDED.path,
    section_type = EXCLUDED.section_type,
    title = EXCLUDED.title,
    content = EXCLUDED.content`

	pgDeleteByIDQuery   = `DELETE FROM codelore_lexical_documents WHERE document_id IN ?`
	pgDeleteByRepoQuery = `DELETE FROM codelore_lexical_documents WHERE repository_id IN ?`
)

// ErrPostgresLexicalInitializationFailed indicates full-text initialization
// failed.
var ErrPostgresLexicalInitializationFailed = errors.New("failed to initialize PostgreSQL lexical store")

// PostgresLexicalStore implements search.LexicalStore using PostgreSQL
// native full-text search with ts_rank_cd scoring.
type PostgresLexicalStore struct {
	db          *gorm.DB
	logger      *slog.Logger
	initialized bool
	mu          sync.Mutex
}

// NewPostgresLexicalStore creates a new PostgresLexicalStore. Schema setup
// is deferred to first use so construction never needs a live connection.
func NewPostgresLexicalStore(db database.Database, logger *slog.Logger) (*PostgresLexicalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLexicalStore{
		db:     db.GORM(),
		logger: logger,
	}, nil
}

func (s *PostgresLexicalStore) initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	db := s.db.WithContext(ctx)
	for _, stmt := range []string{
		pgCreateLexicalTable,
		pgCreateTSVIndex,
		pgCreateRepoIndex,
		pgCreateTriggerFunction,
		pgCreateTrigger,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return errors.Join(ErrPostgresLexicalInitializationFailed, err)
		}
	}

	s.initialized = true
	return nil
}

// Index adds or replaces documents in the keyword index.
func (s *PostgresLexicalStore) Index(ctx context.Context, request search.IndexRequest) error {
	if err := s.initialize(ctx); err != nil {
		return err
	}

	valid := indexableDocuments(request)
	if len(valid) == 0 {
		s.logger.Warn("corpus is empty, skipping lexical index")
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, doc := range valid {
			err := tx.Exec(pgUpsertQuery,
				doc.ID(),
				doc.RepositoryID(),
				doc.Kind().String(),
				doc.Language(),
				doc.Path(),
				doc.SectionType(),
				doc.Title(),
				doc.Content(),
			).Error
			if err != nil {
				return fmt.Errorf("index document %s: %w", doc.ID(), err)
			}
		}
		return nil
	})
}

// Find performs keyword search scored with ts_rank_cd, best matches first.
func (s *PostgresLexicalStore) Find(ctx context.Context, options ...repo.Option) ([]search.Result, error) {
	if err := s.initialize(ctx); err != nil {
		return nil, err
	}

	q := repo.Build(options...)
	query, ok := search.QueryFrom(q)
	if !ok || query == "" {
		return []search.Result{}, nil
	}

	limit := q.LimitValue()
	if limit <= 0 {
		limit = 10
	}

	sanitized := sanitizeTSQuery(query)

	tx := s.db.WithContext(ctx).
		Table("codelore_lexical_documents").
		Select("document_id, ts_rank_cd(tsv, plainto_tsquery('english', ?)) as score", sanitized).
		Where("tsv @@ plainto_tsquery('english', ?)", sanitized)

	if ids := search.DocumentIDsFrom(q); len(ids) > 0 {
		tx = tx.Where("document_id IN ?", ids)
	}
	if filters, ok := search.FiltersFrom(q); ok {
		tx = s.applyFilters(tx, filters)
	}

	tx = tx.Order("score DESC").Limit(limit)

	var rows []struct {
		DocumentID string  `gorm:"column:document_id"`
		Score      float64 `gorm:"column:score"`
	}
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, err
	}

	results := make([]search.Result, len(rows))
	for i, row := range rows {
		results[i] = search.NewResult(row.DocumentID, row.Score)
	}
	return results, nil
}

// DeleteBy removes documents by document id or repository id conditions.
func (s *PostgresLexicalStore) DeleteBy(ctx context.Context, options ...repo.Option) error {
	if err := s.initialize(ctx); err != nil {
		return err
	}

	q := repo.Build(options...)

	if ids := search.DocumentIDsFrom(q); len(ids) > 0 {
		return s.db.WithContext(ctx).Exec(pgDeleteByIDQuery, ids).Error
	}
	if repoIDs := repositoryIDsFrom(q); len(repoIDs) > 0 {
		return s.db.WithContext(ctx).Exec(pgDeleteByRepoQuery, repoIDs).Error
	}
	return nil
}

func (s *PostgresLexicalStore) applyFilters(tx *gorm.DB, filters search.Filters) *gorm.DB {
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
	if language := filters.Language(); language != "" {
		tx = tx.Where("language = ?", language)
	}
	if prefix := filters.PathPrefix(); prefix != "" {
		tx = tx.Where("path LIKE ?", escapeLikePattern(prefix)+"%")
	}
	if types := filters.SectionTypes(); len(types) > 0 {
		tx = tx.Where("section_type IN ?", types)
	}
	return tx
}

// sanitizeTSQuery strips characters that plainto_tsquery mishandles.
func sanitizeTSQuery(query string) string {
	replacer := strings.NewReplacer(
		"'", " ",
		"\"", " ",
		"(", " ",
		")", " ",
		":", " ",
		"!", " ",
		"&", " ",
		"|", " ",
	)
	return replacer.Replace(query)
}
