package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/codelore/codelore/domain/repo"
	"gorm.io/gorm"
)

// ErrNotFound is the store-agnostic "no such row" error. Stores return
// it wrapped with their entity label.
var ErrNotFound = errors.New("entity not found")

// EntityMapper converts between a domain type D and its database row E.
type EntityMapper[D any, E any] interface {
	ToDomain(entity E) D
	ToModel(domain D) E
}

// Repository is the generic read/delete layer shared by the concrete
// stores. Queries are expressed as repo.Option values; writes that need
// entity-specific upsert logic live in the stores themselves.
type Repository[D any, E any] struct {
	db        Database
	mapper    EntityMapper[D, E]
	label     string
	tableName string
}

// NewRepository builds a repository whose table GORM derives from E.
func NewRepository[D any, E any](db Database, mapper EntityMapper[D, E], label string) Repository[D, E] {
	return Repository[D, E]{db: db, mapper: mapper, label: label}
}

// NewRepositoryForTable pins the repository to an explicit table. GORM
// caches schema by struct type, so one entity struct backing several
// tables needs the table set per operation via .Table(); that call is
// what this constructor arranges.
func NewRepositoryForTable[D any, E any](db Database, mapper EntityMapper[D, E], label string, tableName string) Repository[D, E] {
	r := NewRepository(db, mapper, label)
	r.tableName = tableName
	return r
}

// Table returns the pinned table name, empty when GORM derives it.
func (r Repository[D, E]) Table() string {
	return r.tableName
}

// Find returns all matching entities mapped to domain values.
func (r Repository[D, E]) Find(ctx context.Context, options ...repo.Option) ([]D, error) {
	var entities []E
	if err := ApplyOptions(r.modelDB(ctx), options...).Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("find %s: %w", r.label, err)
	}

	domains := make([]D, len(entities))
	for i, entity := range entities {
		domains[i] = r.mapper.ToDomain(entity)
	}
	return domains, nil
}

// FindOne returns the first match, or ErrNotFound.
func (r Repository[D, E]) FindOne(ctx context.Context, options ...repo.Option) (D, error) {
	var zero D
	var entity E
	err := ApplyOptions(r.sessionDB(ctx), options...).First(&entity).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return zero, fmt.Errorf("%w: %s", ErrNotFound, r.label)
	case err != nil:
		return zero, fmt.Errorf("find one %s: %w", r.label, err)
	}
	return r.mapper.ToDomain(entity), nil
}

// Exists reports whether any entity matches.
func (r Repository[D, E]) Exists(ctx context.Context, options ...repo.Option) (bool, error) {
	n, err := r.Count(ctx, options...)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count returns the number of matching entities. Pagination and order
// options are ignored.
func (r Repository[D, E]) Count(ctx context.Context, options ...repo.Option) (int64, error) {
	var count int64
	if err := ApplyConditions(r.modelDB(ctx), options...).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", r.label, err)
	}
	return count, nil
}

// DeleteBy removes all matching entities.
func (r Repository[D, E]) DeleteBy(ctx context.Context, options ...repo.Option) error {
	if err := ApplyOptions(r.sessionDB(ctx), options...).Delete(new(E)).Error; err != nil {
		return fmt.Errorf("delete %s: %w", r.label, err)
	}
	return nil
}

// DB exposes a session scoped to the pinned table, for store-specific
// SQL the generic layer does not cover.
func (r Repository[D, E]) DB(ctx context.Context) *gorm.DB {
	return r.sessionDB(ctx)
}

// Mapper returns the entity mapper.
func (r Repository[D, E]) Mapper() EntityMapper[D, E] {
	return r.mapper
}

// modelDB scopes a session to the entity model and pinned table.
func (r Repository[D, E]) modelDB(ctx context.Context) *gorm.DB {
	return r.pinTable(r.db.Session(ctx).Model(new(E)))
}

// sessionDB scopes a session to the pinned table without a model.
func (r Repository[D, E]) sessionDB(ctx context.Context) *gorm.DB {
	return r.pinTable(r.db.Session(ctx))
}

// pinTable applies the explicit table name. The trailing Session call
// resets GORM's clone counter; without it .Table() consumes the clone
// and later chain methods mutate the session in place.
func (r Repository[D, E]) pinTable(db *gorm.DB) *gorm.DB {
	if r.tableName == "" {
		return db
	}
	return db.Table(r.tableName).Session(&gorm.Session{})
}
