package persistence

import (
	"context"
	"fmt"

	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/search"
	"github.com/codelore/codelore/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SearchDocumentStore implements search.DocumentStore using GORM. It holds
// the document payloads that index hits resolve back to.
type SearchDocumentStore struct {
	db     database.Database
	mapper SearchDocumentMapper
}

// NewSearchDocumentStore creates a new SearchDocumentStore.
func NewSearchDocumentStore(db database.Database) SearchDocumentStore {
	return SearchDocumentStore{
		db:     db,
		mapper: SearchDocumentMapper{},
	}
}

// Upsert adds or replaces documents keyed by id.
func (s SearchDocumentStore) Upsert(ctx context.Context, documents []search.Document) error {
	if len(documents) == 0 {
		return nil
	}

	models := make([]SearchDocumentModel, len(documents))
	for i, d := range documents {
		models[i] = s.mapper.ToModel(d)
	}

	result := s.db.Session(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).CreateInBatches(&models, 500)
	if result.Error != nil {
		return fmt.Errorf("upsert documents: %w", result.Error)
	}
	return nil
}

// ByIDs returns the documents for the given ids, omitting missing ones.
func (s SearchDocumentStore) ByIDs(ctx context.Context, ids []string) ([]search.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var models []SearchDocumentModel
	result := s.db.Session(ctx).Where("id IN ?", ids).Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("get documents: %w", result.Error)
	}

	documents := make([]search.Document, len(models))
	for i, model := range models {
		documents[i] = s.mapper.ToDomain(model)
	}
	return documents, nil
}

// Find returns documents matching the given options. Search filters passed
// via search.WithFilters narrow on the indexed columns in SQL; tag filters
// are verified in Go since tags live in a JSON column.
func (s SearchDocumentStore) Find(ctx context.Context, options ...repo.Option) ([]search.Document, error) {
	query := repo.Build(options...)
	filters, hasFilters := search.FiltersFrom(query)

	db := s.db.Session(ctx)
	if hasFilters {
		db = applyDocumentFilters(db, filters)
		// Conditions and ordering still apply; limit is deferred to Go so
		// tag post-filtering cannot undershoot it.
		db = database.ApplyConditions(db, options...)
		for _, order := range query.Orders() {
			direction := "DESC"
			if order.Ascending() {
				direction = "ASC"
			}
			db = db.Order(fmt.Sprintf("%s %s", order.Field(), direction))
		}
	} else {
		db = database.ApplyOptions(db, options...)
	}

	var models []SearchDocumentModel
	if result := db.Find(&models); result.Error != nil {
		return nil, fmt.Errorf("find documents: %w", result.Error)
	}

	documents := make([]search.Document, 0, len(models))
	for _, model := range models {
		doc := s.mapper.ToDomain(model)
		if hasFilters && !filters.Matches(doc) {
			continue
		}
		documents = append(documents, doc)
	}
	if hasFilters {
		documents = paginate(documents, query.OffsetValue(), query.LimitValue())
	}
	return documents, nil
}

// DeleteBy removes documents matching the given options.
func (s SearchDocumentStore) DeleteBy(ctx context.Context, options ...repo.Option) error {
	db := database.ApplyOptions(s.db.Session(ctx), options...)
	if result := db.Delete(&SearchDocumentModel{}); result.Error != nil {
		return fmt.Errorf("delete documents: %w", result.Error)
	}
	return nil
}

// applyDocumentFilters narrows a search_documents query on the columns the
// schema indexes. Tag membership is not translated; callers re-check with
// Filters.Matches.
func applyDocumentFilters(db *gorm.DB, filters search.Filters) *gorm.DB {
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
	if language := filters.Language(); language != "" {
		db = db.Where("language = ?", language)
	}
	if prefix := filters.PathPrefix(); prefix != "" {
		db = db.Where("path LIKE ?", prefix+"%")
	}
	if types := filters.SectionTypes(); len(types) > 0 {
		db = db.Where("section_type IN ?", types)
	}
	if after := filters.CreatedAfter(); !after.IsZero() {
		db = db.Where("created_at > ?", after)
	}
	if before := filters.CreatedBefore(); !before.IsZero() {
		db = db.Where("created_at < ?", before)
	}
	return db
}
