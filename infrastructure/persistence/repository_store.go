package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RepositoryStore implements repo.Store using GORM.
type RepositoryStore struct {
	database.Repository[repo.Repository, RepositoryModel]
}

// NewRepositoryStore creates a new RepositoryStore.
func NewRepositoryStore(db database.Database) RepositoryStore {
	return RepositoryStore{
		Repository: database.NewRepository[repo.Repository, RepositoryModel](db, RepositoryMapper{}, "repository"),
	}
}

// Save creates or updates a repository.
func (s RepositoryStore) Save(ctx context.Context, repository repo.Repository) (repo.Repository, error) {
	model := s.Mapper().ToModel(repository)

	var result *gorm.DB
	if repository.ID() == 0 {
		result = s.DB(ctx).Create(&model)
	} else {
		result = s.DB(ctx).Save(&model)
	}

	if result.Error != nil {
		return repo.Repository{}, fmt.Errorf("save repository: %w", result.Error)
	}
	return s.Mapper().ToDomain(model), nil
}

// BranchStore implements repo.BranchStore using GORM.
type BranchStore struct {
	database.Repository[repo.Branch, BranchModel]
	db database.Database
}

// NewBranchStore creates a new BranchStore.
func NewBranchStore(db database.Database) BranchStore {
	return BranchStore{
		Repository: database.NewRepository[repo.Branch, BranchModel](db, BranchMapper{}, "branch"),
		db:         db,
	}
}

// ReplaceForRepository swaps the branch set of a repository atomically.
func (s BranchStore) ReplaceForRepository(ctx context.Context, repositoryID int64, branches []repo.Branch) ([]repo.Branch, error) {
	models := make([]BranchModel, len(branches))
	now := time.Now().UTC()
	for i, b := range branches {
		model := s.Mapper().ToModel(b)
		model.ID = 0
		model.RepositoryID = repositoryID
		if model.CreatedAt.IsZero() {
			model.CreatedAt = now
		}
		models[i] = model
	}

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Where("repository_id = ?", repositoryID).Delete(&BranchModel{}).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		return tx.Create(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("replace branches: %w", err)
	}

	saved := make([]repo.Branch, len(models))
	for i, model := range models {
		saved[i] = s.Mapper().ToDomain(model)
	}
	return saved, nil
}

// CommitStore implements repo.CommitStore using GORM.
type CommitStore struct {
	database.Repository[repo.Commit, CommitModel]
}

// NewCommitStore creates a new CommitStore.
func NewCommitStore(db database.Database) CommitStore {
	return CommitStore{
		Repository: database.NewRepository[repo.Commit, CommitModel](db, CommitMapper{}, "commit"),
	}
}

// SaveAll upserts commits keyed by (repository_id, sha).
func (s CommitStore) SaveAll(ctx context.Context, commits []repo.Commit) ([]repo.Commit, error) {
	if len(commits) == 0 {
		return []repo.Commit{}, nil
	}

	models := make([]CommitModel, len(commits))
	now := time.Now().UTC()
	for i, c := range commits {
		model := s.Mapper().ToModel(c)
		if model.CreatedAt.IsZero() {
			model.CreatedAt = now
		}
		models[i] = model
	}

	result := s.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "repository_id"}, {Name: "sha"}},
		DoUpdates: clause.AssignmentColumns([]string{"message", "author", "authored_at"}),
	}).Create(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("save commits: %w", result.Error)
	}

	saved := make([]repo.Commit, len(models))
	for i, model := range models {
		saved[i] = s.Mapper().ToDomain(model)
	}
	return saved, nil
}
