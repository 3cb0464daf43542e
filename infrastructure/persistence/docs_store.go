package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/codelore/codelore/domain/docs"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/internal/database"
	"gorm.io/gorm"
)

// DocsStore implements docs.Store using GORM. Documentation is an aggregate:
// the root row and its section rows are written together in one transaction,
// with sections replaced wholesale on every save.
type DocsStore struct {
	db            database.Database
	mapper        DocumentationMapper
	sectionMapper SectionMapper
}

// NewDocsStore creates a new DocsStore.
func NewDocsStore(db database.Database) DocsStore {
	return DocsStore{
		db:            db,
		mapper:        DocumentationMapper{},
		sectionMapper: SectionMapper{},
	}
}

// Save inserts or updates documentation and its sections.
func (s DocsStore) Save(ctx context.Context, documentation docs.Documentation) (docs.Documentation, error) {
	model := s.mapper.ToModel(documentation)

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		var result *gorm.DB
		if model.ID == 0 {
			result = tx.Create(&model)
		} else {
			result = tx.Save(&model)
		}
		if result.Error != nil {
			return fmt.Errorf("save documentation: %w", result.Error)
		}

		if result := tx.Where("documentation_id = ?", model.ID).Delete(&SectionModel{}); result.Error != nil {
			return fmt.Errorf("clear sections: %w", result.Error)
		}

		sections := documentation.Sections()
		if len(sections) == 0 {
			return nil
		}

		sectionModels := make([]SectionModel, len(sections))
		for i, section := range sections {
			sm := s.sectionMapper.ToModel(section)
			sm.ID = 0 // replaced wholesale, ids reassigned
			sm.DocumentationID = model.ID
			sectionModels[i] = sm
		}
		if result := tx.Create(&sectionModels); result.Error != nil {
			return fmt.Errorf("save sections: %w", result.Error)
		}
		return nil
	})
	if err != nil {
		return docs.Documentation{}, err
	}

	return s.load(ctx, model)
}

// Find retrieves documentation matching the given options.
func (s DocsStore) Find(ctx context.Context, options ...repo.Option) ([]docs.Documentation, error) {
	var models []DocumentationModel
	db := database.ApplyOptions(s.db.Session(ctx), options...)
	if result := db.Find(&models); result.Error != nil {
		return nil, fmt.Errorf("find documentation: %w", result.Error)
	}
	if len(models) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(models))
	for i, model := range models {
		ids[i] = model.ID
	}

	var sectionModels []SectionModel
	result := s.db.Session(ctx).
		Where("documentation_id IN ?", ids).
		Order("sort_order ASC").
		Find(&sectionModels)
	if result.Error != nil {
		return nil, fmt.Errorf("find sections: %w", result.Error)
	}

	grouped := make(map[int64][]docs.Section)
	for _, sm := range sectionModels {
		grouped[sm.DocumentationID] = append(grouped[sm.DocumentationID], s.sectionMapper.ToDomain(sm))
	}

	documentations := make([]docs.Documentation, len(models))
	for i, model := range models {
		documentations[i] = s.mapper.ToDomain(model, grouped[model.ID])
	}
	return documentations, nil
}

// FindOne retrieves a single documentation matching the given options.
func (s DocsStore) FindOne(ctx context.Context, options ...repo.Option) (docs.Documentation, error) {
	var model DocumentationModel
	db := database.ApplyOptions(s.db.Session(ctx), options...)
	if result := db.First(&model); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return docs.Documentation{}, fmt.Errorf("%w: documentation", database.ErrNotFound)
		}
		return docs.Documentation{}, fmt.Errorf("find documentation: %w", result.Error)
	}
	return s.load(ctx, model)
}

// ForRepository retrieves the documentation of a repository.
func (s DocsStore) ForRepository(ctx context.Context, repositoryID int64) (docs.Documentation, error) {
	documentation, err := s.FindOne(ctx, repo.WithRepositoryID(repositoryID))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return docs.Documentation{}, fmt.Errorf("%w: documentation for repository %d", database.ErrNotFound, repositoryID)
		}
		return docs.Documentation{}, err
	}
	return documentation, nil
}

// DeleteBy removes documentation and its sections matching the given options.
func (s DocsStore) DeleteBy(ctx context.Context, options ...repo.Option) error {
	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		var models []DocumentationModel
		db := database.ApplyOptions(tx, options...)
		if result := db.Find(&models); result.Error != nil {
			return fmt.Errorf("find documentation: %w", result.Error)
		}
		if len(models) == 0 {
			return nil
		}

		ids := make([]int64, len(models))
		for i, model := range models {
			ids[i] = model.ID
		}

		if result := tx.Where("documentation_id IN ?", ids).Delete(&SectionModel{}); result.Error != nil {
			return fmt.Errorf("delete sections: %w", result.Error)
		}
		if result := tx.Where("id IN ?", ids).Delete(&DocumentationModel{}); result.Error != nil {
			return fmt.Errorf("delete documentation: %w", result.Error)
		}
		return nil
	})
}

func (s DocsStore) load(ctx context.Context, model DocumentationModel) (docs.Documentation, error) {
	var sectionModels []SectionModel
	result := s.db.Session(ctx).
		Where("documentation_id = ?", model.ID).
		Order("sort_order ASC").
		Find(&sectionModels)
	if result.Error != nil {
		return docs.Documentation{}, fmt.Errorf("load sections: %w", result.Error)
	}

	sections := make([]docs.Section, len(sectionModels))
	for i, sm := range sectionModels {
		sections[i] = s.sectionMapper.ToDomain(sm)
	}
	return s.mapper.ToDomain(model, sections), nil
}
