package persistence

import (
	"log/slog"

	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/search"
	"github.com/codelore/codelore/internal/database"
)

// NewLexicalStore creates the keyword index matching the database driver:
// FTS5 on SQLite, native full-text search on PostgreSQL.
func NewLexicalStore(db database.Database, logger *slog.Logger) (search.LexicalStore, error) {
	if db.IsPostgres() {
		return NewPostgresLexicalStore(db, logger)
	}
	return NewSQLiteLexicalStore(db, logger)
}

// indexableDocuments drops documents that cannot be indexed.
func indexableDocuments(request search.IndexRequest) []search.Document {
	var valid []search.Document
	for _, doc := range request.Documents() {
		if doc.ID() != "" && doc.Content() != "" {
			valid = append(valid, doc)
		}
	}
	return valid
}

// repositoryIDsFrom extracts repository id conditions from a built query.
func repositoryIDsFrom(q repo.Query) []int64 {
	for _, cond := range q.Conditions() {
		if cond.Field() != "repository_id" {
			continue
		}
		if cond.In() {
			if ids, ok := cond.Value().([]int64); ok {
				return ids
			}
			continue
		}
		if id, ok := cond.Value().(int64); ok {
			return []int64{id}
		}
	}
	return nil
}
