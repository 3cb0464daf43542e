package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/codelore/codelore/domain/entity"
	"github.com/codelore/codelore/domain/graph"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GraphStore implements graph.Store using GORM.
type GraphStore struct {
	database.Repository[graph.KnowledgeGraph, KnowledgeGraphModel]
}

// NewGraphStore creates a new GraphStore.
func NewGraphStore(db database.Database) GraphStore {
	return GraphStore{
		Repository: database.NewRepository[graph.KnowledgeGraph, KnowledgeGraphModel](db, GraphMapper{}, "knowledge graph"),
	}
}

// Save creates or updates a knowledge graph.
func (s GraphStore) Save(ctx context.Context, g graph.KnowledgeGraph) (graph.KnowledgeGraph, error) {
	model := s.Mapper().ToModel(g)

	var result *gorm.DB
	if g.ID() == 0 {
		result = s.DB(ctx).Create(&model)
	} else {
		result = s.DB(ctx).Save(&model)
	}

	if result.Error != nil {
		return graph.KnowledgeGraph{}, fmt.Errorf("save knowledge graph: %w", result.Error)
	}
	return s.Mapper().ToDomain(model), nil
}

// ForRepository retrieves the graph covering a repository. Coverage lives in
// a JSON array column, so candidates are filtered in Go; deployments hold few
// graphs.
func (s GraphStore) ForRepository(ctx context.Context, repositoryID int64) (graph.KnowledgeGraph, error) {
	graphs, err := s.Find(ctx)
	if err != nil {
		return graph.KnowledgeGraph{}, err
	}
	for _, g := range graphs {
		if g.Covers(repositoryID) {
			return g, nil
		}
	}
	return graph.KnowledgeGraph{}, fmt.Errorf("%w: knowledge graph for repository %d", database.ErrNotFound, repositoryID)
}

// EntityStore implements graph.EntityStore using GORM. Find and Count see
// only live entities; tombstoned rows stay resolvable through ByID until the
// next rebuild removes their edges.
type EntityStore struct {
	db     database.Database
	mapper EntityMapper
}

// NewEntityStore creates a new EntityStore.
func NewEntityStore(db database.Database) EntityStore {
	return EntityStore{
		db:     db,
		mapper: EntityMapper{},
	}
}

// entityUpsertColumns deliberately excludes "vector": embeddings are
// written by SaveVectors after extraction and must survive rebuilds.
var entityUpsertColumns = []string{
	"repository_id", "name", "qualified_name", "kind", "file_path",
	"language", "start_line", "end_line", "content",
	"complexity", "attributes", "metadata", "deleted", "updated_at",
}

// UpsertAll writes entities idempotently keyed by stable id. A re-written
// entity is revived if it was tombstoned.
func (s EntityStore) UpsertAll(ctx context.Context, entities []entity.CodeEntity) error {
	if len(entities) == 0 {
		return nil
	}

	now := time.Now().UTC()
	models := make([]CodeEntityModel, len(entities))
	for i, e := range entities {
		model := s.mapper.ToModel(e)
		model.CreatedAt = now
		model.UpdatedAt = now
		models[i] = model
	}

	result := s.db.Session(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entity_id"}},
		DoUpdates: clause.AssignmentColumns(entityUpsertColumns),
	}).CreateInBatches(&models, 200)
	if result.Error != nil {
		return fmt.Errorf("upsert entities: %w", result.Error)
	}
	return nil
}

// SaveVectors stores embedding vectors keyed by entity id. Updates run in
// one transaction so a failed batch leaves no partial vectors behind.
func (s EntityStore) SaveVectors(ctx context.Context, vectors map[string][]float64) error {
	if len(vectors) == 0 {
		return nil
	}

	ids := make([]string, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := time.Now().UTC()
	err := s.db.Session(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			result := tx.Model(&CodeEntityModel{}).
				Where("entity_id = ?", id).
				Updates(map[string]any{
					"vector":     toJSON(vectors[id]),
					"updated_at": now,
				})
			if result.Error != nil {
				return result.Error
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save entity vectors: %w", err)
	}
	return nil
}

// Find retrieves live entities matching the given options.
func (s EntityStore) Find(ctx context.Context, options ...repo.Option) ([]entity.CodeEntity, error) {
	var models []CodeEntityModel
	db := s.db.Session(ctx).Where("deleted = ?", false)
	db = database.ApplyOptions(db, options...)
	if result := db.Find(&models); result.Error != nil {
		return nil, fmt.Errorf("find entities: %w", result.Error)
	}

	entities := make([]entity.CodeEntity, len(models))
	for i, model := range models {
		entities[i] = s.mapper.ToDomain(model)
	}
	return entities, nil
}

// ByID retrieves one entity by stable id, tombstoned or not.
func (s EntityStore) ByID(ctx context.Context, entityID string) (entity.CodeEntity, error) {
	var model CodeEntityModel
	result := s.db.Session(ctx).Where("entity_id = ?", entityID).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return entity.CodeEntity{}, fmt.Errorf("%w: entity %s", database.ErrNotFound, entityID)
		}
		return entity.CodeEntity{}, fmt.Errorf("get entity: %w", result.Error)
	}
	return s.mapper.ToDomain(model), nil
}

// Count returns the number of live entities matching the options.
func (s EntityStore) Count(ctx context.Context, options ...repo.Option) (int64, error) {
	var count int64
	db := s.db.Session(ctx).Model(&CodeEntityModel{}).Where("deleted = ?", false)
	db = database.ApplyConditions(db, options...)
	if result := db.Count(&count); result.Error != nil {
		return 0, fmt.Errorf("count entities: %w", result.Error)
	}
	return count, nil
}

// Tombstone marks every live entity of the repository that is not in the
// live id set as deleted, returning how many were tombstoned.
func (s EntityStore) Tombstone(ctx context.Context, repositoryID int64, liveIDs []string) (int64, error) {
	db := s.db.Session(ctx).Model(&CodeEntityModel{}).
		Where("repository_id = ? AND deleted = ?", repositoryID, false)
	if len(liveIDs) > 0 {
		db = db.Where("entity_id NOT IN ?", liveIDs)
	}

	result := db.Updates(map[string]any{
		"deleted":    true,
		"updated_at": time.Now().UTC(),
	})
	if result.Error != nil {
		return 0, fmt.Errorf("tombstone entities: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteBy removes entity rows matching the given options.
func (s EntityStore) DeleteBy(ctx context.Context, options ...repo.Option) error {
	db := database.ApplyOptions(s.db.Session(ctx), options...)
	if result := db.Delete(&CodeEntityModel{}); result.Error != nil {
		return fmt.Errorf("delete entities: %w", result.Error)
	}
	return nil
}

// RelationshipStore implements graph.RelationshipStore using GORM.
type RelationshipStore struct {
	db     database.Database
	mapper RelationshipMapper
}

// NewRelationshipStore creates a new RelationshipStore.
func NewRelationshipStore(db database.Database) RelationshipStore {
	return RelationshipStore{
		db:     db,
		mapper: RelationshipMapper{},
	}
}

// UpsertAll writes relationships idempotently keyed by (source, target, type).
func (s RelationshipStore) UpsertAll(ctx context.Context, relationships []entity.CodeRelationship) error {
	if len(relationships) == 0 {
		return nil
	}

	now := time.Now().UTC()
	models := make([]CodeRelationshipModel, len(relationships))
	for i, r := range relationships {
		model := s.mapper.ToModel(r)
		model.CreatedAt = now
		model.UpdatedAt = now
		models[i] = model
	}

	result := s.db.Session(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}, {Name: "target_id"}, {Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{"weight", "confidence", "source_refs", "properties", "detected_at", "updated_at"}),
	}).CreateInBatches(&models, 200)
	if result.Error != nil {
		return fmt.Errorf("upsert relationships: %w", result.Error)
	}
	return nil
}

// Find retrieves relationships matching the given options.
func (s RelationshipStore) Find(ctx context.Context, options ...repo.Option) ([]entity.CodeRelationship, error) {
	var models []CodeRelationshipModel
	db := database.ApplyOptions(s.db.Session(ctx), options...)
	if result := db.Find(&models); result.Error != nil {
		return nil, fmt.Errorf("find relationships: %w", result.Error)
	}

	relationships := make([]entity.CodeRelationship, len(models))
	for i, model := range models {
		relationships[i] = s.mapper.ToDomain(model)
	}
	return relationships, nil
}

// Count returns the number of matching relationships.
func (s RelationshipStore) Count(ctx context.Context, options ...repo.Option) (int64, error) {
	var count int64
	db := database.ApplyConditions(s.db.Session(ctx).Model(&CodeRelationshipModel{}), options...)
	if result := db.Count(&count); result.Error != nil {
		return 0, fmt.Errorf("count relationships: %w", result.Error)
	}
	return count, nil
}

// Neighborhood walks edges breadth-first from an entity up to depth hops.
// Each hop is one indexed query over the current frontier; edges are
// deduplicated by identity key.
func (s RelationshipStore) Neighborhood(ctx context.Context, entityID string, depth int) ([]entity.CodeRelationship, error) {
	if depth < 1 {
		depth = 1
	}

	visited := map[string]struct{}{entityID: {}}
	seen := make(map[string]struct{})
	frontier := []string{entityID}
	var edges []entity.CodeRelationship

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var models []CodeRelationshipModel
		result := s.db.Session(ctx).
			Where("source_id IN ? OR target_id IN ?", frontier, frontier).
			Find(&models)
		if result.Error != nil {
			return nil, fmt.Errorf("neighborhood hop %d: %w", hop+1, result.Error)
		}

		var next []string
		for _, model := range models {
			rel := s.mapper.ToDomain(model)
			if _, dup := seen[rel.Key()]; dup {
				continue
			}
			seen[rel.Key()] = struct{}{}
			edges = append(edges, rel)

			for _, id := range []string{rel.SourceID(), rel.TargetID()} {
				if _, ok := visited[id]; !ok {
					visited[id] = struct{}{}
					next = append(next, id)
				}
			}
		}
		frontier = next
	}

	return edges, nil
}

// PruneDangling removes edges referencing a tombstoned entity. External
// targets have no entity row and are never pruned.
func (s RelationshipStore) PruneDangling(ctx context.Context) (int64, error) {
	sourceStale := s.db.Session(ctx).Model(&CodeEntityModel{}).
		Select("entity_id").Where("deleted = ?", true)
	targetStale := s.db.Session(ctx).Model(&CodeEntityModel{}).
		Select("entity_id").Where("deleted = ?", true)

	result := s.db.Session(ctx).
		Where("source_id IN (?) OR target_id IN (?)", sourceStale, targetStale).
		Delete(&CodeRelationshipModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune dangling relationships: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteBy removes relationships matching the given options.
func (s RelationshipStore) DeleteBy(ctx context.Context, options ...repo.Option) error {
	db := database.ApplyOptions(s.db.Session(ctx), options...)
	if result := db.Delete(&CodeRelationshipModel{}); result.Error != nil {
		return fmt.Errorf("delete relationships: %w", result.Error)
	}
	return nil
}

// PatternStore implements graph.PatternStore using GORM.
type PatternStore struct {
	database.Repository[entity.ArchitecturalPattern, ArchitecturalPatternModel]
}

// NewPatternStore creates a new PatternStore.
func NewPatternStore(db database.Database) PatternStore {
	return PatternStore{
		Repository: database.NewRepository[entity.ArchitecturalPattern, ArchitecturalPatternModel](db, PatternMapper{}, "pattern"),
	}
}

// UpsertAll writes patterns idempotently keyed by stable pattern id.
func (s PatternStore) UpsertAll(ctx context.Context, patterns []entity.ArchitecturalPattern) error {
	if len(patterns) == 0 {
		return nil
	}

	now := time.Now().UTC()
	models := make([]ArchitecturalPatternModel, len(patterns))
	for i, p := range patterns {
		model := s.Mapper().ToModel(p)
		model.CreatedAt = now
		model.UpdatedAt = now
		models[i] = model
	}

	result := s.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pattern_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"repository_id", "name", "category", "confidence", "participants", "characteristics", "violations", "updated_at"}),
	}).Create(&models)
	if result.Error != nil {
		return fmt.Errorf("upsert patterns: %w", result.Error)
	}
	return nil
}

// PruneStale removes the repository's patterns not in the live id set. An
// empty live set removes all of the repository's patterns.
func (s PatternStore) PruneStale(ctx context.Context, repositoryID int64, liveIDs []string) (int64, error) {
	db := s.DB(ctx).Where("repository_id = ?", repositoryID)
	if len(liveIDs) > 0 {
		db = db.Where("pattern_id NOT IN ?", liveIDs)
	}

	result := db.Delete(&ArchitecturalPatternModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune stale patterns: %w", result.Error)
	}
	return result.RowsAffected, nil
}
