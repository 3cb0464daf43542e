package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/search"
	"github.com/codelore/codelore/internal/database"
	"gorm.io/gorm"
)

// SQL statements for the SQLite FTS5 keyword index. Provenance columns are
// UNINDEXED so filters can run without polluting term statistics.
const (
	sqliteCreateFTS5Table = `
CREATE VIRTUAL TABLE IF NOT EXISTS codelore_lexical_documents USING fts5(
    document_id UNINDEXED,
    repository_id UNINDEXED,
    kind UNINDEXED,
    language UNINDEXED,
    path UNINDEXED,
    section_type UNINDEXED,
    title,
    content,
    tokenize='porter ascii'
)`

	sqliteInsertQuery = `
INSERT INTO codelore_lexical_documents
    (document_id, repository_id, kind, language, path, section_type, title, content)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	sqliteDeleteByIDQuery   = `DELETE FROM codelore_lexical_documents WHERE document_id IN ?`
	sqliteDeleteByRepoQuery = `DELETE FROM codelore_lexical_documents WHERE repository_id IN ?`
)

// ErrSQLiteLexicalInitializationFailed indicates FTS5 initialization failed.
var ErrSQLiteLexicalInitializationFailed = errors.New("failed to initialize SQLite FTS5 lexical store")

// SQLiteLexicalStore implements search.LexicalStore using SQLite FTS5.
type SQLiteLexicalStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewSQLiteLexicalStore creates a new SQLiteLexicalStore, eagerly creating
// the FTS5 virtual table.
func NewSQLiteLexicalStore(db database.Database, logger *slog.Logger) (*SQLiteLexicalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SQLiteLexicalStore{
		db:     db.GORM(),
		logger: logger,
	}

	if err := s.db.Exec(sqliteCreateFTS5Table).Error; err != nil {
		return nil, errors.Join(ErrSQLiteLexicalInitializationFailed, fmt.Errorf("create fts5 table: %w", err))
	}
	return s, nil
}

// Index adds or replaces documents in the keyword index. Re-indexed ids are
// deleted first so stale passages never linger.
func (s *SQLiteLexicalStore) Index(ctx context.Context, request search.IndexRequest) error {
	valid := indexableDocuments(request)
	if len(valid) == 0 {
		s.logger.Warn("corpus is empty, skipping lexical index")
		return nil
	}

	ids := make([]string, len(valid))
	for i, doc := range valid {
		ids[i] = doc.ID()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(sqliteDeleteByIDQuery, ids).Error; err != nil {
			return fmt.Errorf("replace documents: %w", err)
		}
		for _, doc := range valid {
			err := tx.Exec(sqliteInsertQuery,
				doc.ID(),
				strconv.FormatInt(doc.RepositoryID(), 10),
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

// Find performs keyword search, best matches first. FTS5 bm25() returns
// negative scores (more negative is better); they are negated so callers see
// higher-is-better.
func (s *SQLiteLexicalStore) Find(ctx context.Context, options ...repo.Option) ([]search.Result, error) {
	q := repo.Build(options...)
	query, ok := search.QueryFrom(q)
	if !ok || query == "" {
		return []search.Result{}, nil
	}

	limit := q.LimitValue()
	if limit <= 0 {
		limit = 10
	}

	tx := s.db.WithContext(ctx).
		Table("codelore_lexical_documents").
		Select("document_id, bm25(codelore_lexical_documents) as score").
		Where("codelore_lexical_documents MATCH ?", escapeFTS5Query(query))

	if ids := search.DocumentIDsFrom(q); len(ids) > 0 {
		tx = tx.Where("document_id IN ?", ids)
	}
	if filters, ok := search.FiltersFrom(q); ok {
		tx = s.applyFilters(tx, filters)
	}

	tx = tx.Order("score").Limit(limit)

	// Manual row scanning so FTS5 UNINDEXED columns read correctly.
	sqlRows, err := tx.Rows()
	if err != nil {
		return nil, err
	}
	defer func() { _ = sqlRows.Close() }()

	var results []search.Result
	for sqlRows.Next() {
		var documentID string
		var score float64
		if err := sqlRows.Scan(&documentID, &score); err != nil {
			return nil, err
		}
		results = append(results, search.NewResult(documentID, -score))
	}
	if err := sqlRows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteBy removes documents by document id or repository id conditions.
func (s *SQLiteLexicalStore) DeleteBy(ctx context.Context, options ...repo.Option) error {
	q := repo.Build(options...)

	if ids := search.DocumentIDsFrom(q); len(ids) > 0 {
		return s.db.WithContext(ctx).Exec(sqliteDeleteByIDQuery, ids).Error
	}
	if repoIDs := repositoryIDsFrom(q); len(repoIDs) > 0 {
		values := make([]string, len(repoIDs))
		for i, id := range repoIDs {
			values[i] = strconv.FormatInt(id, 10)
		}
		return s.db.WithContext(ctx).Exec(sqliteDeleteByRepoQuery, values).Error
	}
	return nil
}

// applyFilters narrows on the UNINDEXED provenance columns. FTS5 columns
// carry no type affinity, so numeric ids are compared as strings.
func (s *SQLiteLexicalStore) applyFilters(tx *gorm.DB, filters search.Filters) *gorm.DB {
	if ids := filters.RepositoryIDs(); len(ids) > 0 {
		values := make([]string, len(ids))
		for i, id := range ids {
			values[i] = strconv.FormatInt(id, 10)
		}
		tx = tx.Where("repository_id IN ?", values)
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

// escapeFTS5Query wraps the query in double quotes so FTS5 operators
// (AND OR NOT ( ) * ^) inside user text are treated as a phrase.
func escapeFTS5Query(query string) string {
	return "\"" + strings.ReplaceAll(query, "\"", "\"\"") + "\""
}

// escapeLikePattern escapes LIKE wildcards in a literal prefix.
func escapeLikePattern(prefix string) string {
	replacer := strings.NewReplacer("%", `\%`, "_", `\_`)
	return replacer.Replace(prefix)
}
