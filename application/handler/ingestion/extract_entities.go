package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codelore/codelore/application/handler"
	"github.com/codelore/codelore/application/service"
	"github.com/codelore/codelore/domain/entity"
	"github.com/codelore/codelore/domain/event"
	"github.com/codelore/codelore/domain/graph"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/search"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/source"
	"github.com/codelore/codelore/internal/config"
	"github.com/codelore/codelore/internal/retry"
)

// ExtractEntities parses the repository tree into code entities and
// persists them ahead of the graph build. Persisting here means search and
// entity lookups work even when the later relationship linking fails.
// With an embedder configured, entity contents are embedded in batches and
// stored as the entities' content vectors.
type ExtractEntities struct {
	repos          repo.Store
	builder        *service.GraphBuilder
	stores         graph.Stores
	embedder       search.Embedder
	cred           source.Credential
	policy         retry.Policy
	bus            event.Publisher
	trackerFactory handler.TrackerFactory
	logger         *slog.Logger
}

// NewExtractEntities creates a new ExtractEntities handler. embedder may
// be nil, in which case entities carry no content vectors.
func NewExtractEntities(
	repos repo.Store,
	builder *service.GraphBuilder,
	stores graph.Stores,
	embedder search.Embedder,
	cred source.Credential,
	bus event.Publisher,
	trackerFactory handler.TrackerFactory,
	logger *slog.Logger,
) *ExtractEntities {
	return &ExtractEntities{
		repos:          repos,
		builder:        builder,
		stores:         stores,
		embedder:       embedder,
		cred:           cred,
		policy:         retry.DefaultPolicy(),
		bus:            bus,
		trackerFactory: trackerFactory,
		logger:         logger,
	}
}

// WithRetryPolicy replaces the retry policy for source and embedding calls.
func (h *ExtractEntities) WithRetryPolicy(policy retry.Policy) *ExtractEntities {
	h.policy = policy
	return h
}

// Execute processes the entity extraction task for one repository.
func (h *ExtractEntities) Execute(ctx context.Context, payload map[string]any) error {
	repositoryID, err := handler.ExtractInt64(payload, "repository_id")
	if err != nil {
		return err
	}

	tracker := h.trackerFactory.ForOperation(
		task.OperationExtractEntities,
		task.TrackableTypeRepository,
		repositoryID,
	)

	repository, err := h.repos.FindOne(ctx, repo.WithID(repositoryID))
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("get repository: %w", err)
	}
	if repository.Status() != repo.StatusAnalyzing {
		tracker.Skip(ctx, fmt.Sprintf("Repository is %s, not under analysis", repository.Status()))
		return nil
	}

	tracker.SetTotal(ctx, 3)
	tracker.SetCurrent(ctx, 0, "Extracting code entities")

	ext, err := retry.DoResult(ctx, h.policy, func(ctx context.Context) (service.RepositoryExtraction, error) {
		return h.builder.ExtractRepository(ctx, repositoryID, h.cred)
	})
	if err != nil {
		failRepository(ctx, h.repos, h.bus, h.logger, repository, fmt.Errorf("extract entities: %w", err))
		tracker.Fail(ctx, err.Error())
		return err
	}

	tracker.SetCurrent(ctx, 1, "Persisting entities")

	if err := h.stores.Entities.UpsertAll(ctx, ext.Entities); err != nil {
		failRepository(ctx, h.repos, h.bus, h.logger, repository, fmt.Errorf("save entities: %w", err))
		tracker.Fail(ctx, err.Error())
		return err
	}
	liveIDs := make([]string, len(ext.Entities))
	for i, e := range ext.Entities {
		liveIDs[i] = e.EntityID()
	}
	tombstoned, err := h.stores.Entities.Tombstone(ctx, repositoryID, liveIDs)
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("tombstone stale entities: %w", err)
	}

	tracker.SetCurrent(ctx, 2, "Embedding entity contents")
	embedded := h.embedEntities(ctx, repositoryID, ext.Entities)

	h.logger.Info("entities extracted",
		slog.Int64("repository_id", repositoryID),
		slog.Int("entities", len(ext.Entities)),
		slog.Int("intra_file_relationships", len(ext.Relationships)),
		slog.Int64("tombstoned", tombstoned),
		slog.Int("embedded", embedded),
	)
	tracker.Complete(ctx)
	return nil
}

// embedEntities stores a content vector per entity, batching the embedding
// calls and retrying transient provider failures. Embedding is enrichment:
// an exhausted retry budget logs the batch and moves on rather than
// failing the extraction.
func (h *ExtractEntities) embedEntities(ctx context.Context, repositoryID int64, entities []entity.CodeEntity) int {
	if h.embedder == nil || len(entities) == 0 {
		return 0
	}

	embedded := 0
	for offset := 0; offset < len(entities); offset += config.DefaultEmbeddingBatchSize {
		end := min(offset+config.DefaultEmbeddingBatchSize, len(entities))
		batch := entities[offset:end]

		texts := make([]string, len(batch))
		for i, e := range batch {
			texts[i] = e.Content()
		}

		vectors, err := retry.DoResult(ctx, h.policy, func(ctx context.Context) ([][]float64, error) {
			return h.embedder.Embed(ctx, texts)
		})
		if err != nil || len(vectors) != len(batch) {
			h.logger.Warn("entity embedding batch skipped",
				slog.Int64("repository_id", repositoryID),
				slog.Int("offset", offset),
				slog.Any("error", err),
			)
			continue
		}

		byID := make(map[string][]float64, len(batch))
		for i, e := range batch {
			byID[e.EntityID()] = vectors[i]
		}
		if err := h.stores.Entities.SaveVectors(ctx, byID); err != nil {
			h.logger.Warn("entity vectors not persisted",
				slog.Int64("repository_id", repositoryID),
				slog.String("error", err.Error()),
			)
			continue
		}
		embedded += len(batch)
	}
	return embedded
}
