package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codelore/codelore/application/handler"
	"github.com/codelore/codelore/domain/event"
	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/index"
	"github.com/codelore/codelore/infrastructure/source"
	"github.com/codelore/codelore/internal/retry"
)

// progressStride is how many files are indexed between progress updates.
const progressStride = 25

// IndexContent walks the repository inventory and indexes every eligible
// file, then moves the repository to Ready. This is the last stage of the
// ingestion pipeline; documentation generation is scheduled separately.
type IndexContent struct {
	repos          repo.Store
	adapter        source.Adapter
	indexer        *index.Indexer
	cred           source.Credential
	policy         retry.Policy
	bus            event.Publisher
	trackerFactory handler.TrackerFactory
	logger         *slog.Logger
}

// NewIndexContent creates a new IndexContent handler.
func NewIndexContent(
	repos repo.Store,
	adapter source.Adapter,
	indexer *index.Indexer,
	cred source.Credential,
	bus event.Publisher,
	trackerFactory handler.TrackerFactory,
	logger *slog.Logger,
) *IndexContent {
	return &IndexContent{
		repos:          repos,
		adapter:        adapter,
		indexer:        indexer,
		cred:           cred,
		policy:         retry.DefaultPolicy(),
		bus:            bus,
		trackerFactory: trackerFactory,
		logger:         logger,
	}
}

// WithRetryPolicy overrides the retry policy applied to source reads.
func (h *IndexContent) WithRetryPolicy(policy retry.Policy) *IndexContent {
	h.policy = policy
	return h
}

// Execute processes the content indexing task for one repository.
func (h *IndexContent) Execute(ctx context.Context, payload map[string]any) error {
	repositoryID, err := handler.ExtractInt64(payload, "repository_id")
	if err != nil {
		return err
	}

	tracker := h.trackerFactory.ForOperation(
		task.OperationIndexContent,
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

	inventory, ok := h.adapter.(source.InventorySource)
	if !ok {
		cause := fault.New(fault.KindPermanentDependency, "source adapter cannot produce a file inventory")
		failRepository(ctx, h.repos, h.bus, h.logger, repository, cause)
		tracker.Fail(ctx, cause.Error())
		return cause
	}
	inv, err := retry.DoResult(ctx, h.policy, func(ctx context.Context) (source.Inventory, error) {
		return inventory.Inventory(ctx, repository, "", h.cred)
	})
	if err != nil {
		failRepository(ctx, h.repos, h.bus, h.logger, repository, fmt.Errorf("read inventory: %w", err))
		tracker.Fail(ctx, err.Error())
		return err
	}

	files := indexableFiles(h.indexer, inv.Files)
	tracker.SetTotal(ctx, len(files))

	var chunks, failed int
	livePaths := make([]string, 0, len(files))
	for i, file := range files {
		content, err := retry.DoResult(ctx, h.policy, func(ctx context.Context) ([]byte, error) {
			return h.adapter.ReadFile(ctx, repository, "", file.Path, h.cred)
		})
		if err != nil {
			if fault.Retryable(err) {
				failRepository(ctx, h.repos, h.bus, h.logger, repository, fmt.Errorf("read %s: %w", file.Path, err))
				tracker.Fail(ctx, err.Error())
				return err
			}
			h.logger.Warn("file skipped during indexing",
				slog.Int64("repository_id", repositoryID),
				slog.String("path", file.Path),
				slog.String("error", err.Error()),
			)
			failed++
			continue
		}

		n, err := h.indexer.IndexFile(ctx, repositoryID, file.Path,
			source.LanguageForPath(file.Path), string(content))
		if err != nil {
			failRepository(ctx, h.repos, h.bus, h.logger, repository, fmt.Errorf("index %s: %w", file.Path, err))
			tracker.Fail(ctx, err.Error())
			return err
		}
		chunks += n
		livePaths = append(livePaths, file.Path)

		if (i+1)%progressStride == 0 {
			tracker.SetCurrent(ctx, i+1, fmt.Sprintf("Indexed %d of %d files", i+1, len(files)))
		}
	}

	pruned, err := h.indexer.PruneFiles(ctx, repositoryID, livePaths)
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("prune stale documents: %w", err)
	}

	from := repository.Status()
	ready, err := repository.Transition(repo.StatusReady)
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return err
	}
	ready = ready.MarkIndexed(time.Now())
	repository, err = h.repos.Save(ctx, ready)
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("save repository: %w", err)
	}

	h.bus.Publish(ctx,
		event.NewRepositoryStatusChanged(
			repository.ID(), repository.FullName(),
			from.String(), repo.StatusReady.String(),
		),
		event.NewRepositoryReady(repository.ID(), repository.FullName()),
	)

	h.logger.Info("repository content indexed",
		slog.Int64("repository_id", repositoryID),
		slog.Int("files", len(livePaths)),
		slog.Int("chunks", chunks),
		slog.Int("skipped", failed),
		slog.Int("pruned", pruned),
	)
	tracker.Complete(ctx)
	return nil
}

// indexableFiles drops files the indexer would refuse and files above the
// adapter read limit.
func indexableFiles(x *index.Indexer, files []source.FileRecord) []source.FileRecord {
	eligible := make([]source.FileRecord, 0, len(files))
	for _, f := range files {
		if f.Size > source.MaxFileBytes {
			continue
		}
		if !x.ShouldIndex(f.Path) {
			continue
		}
		eligible = append(eligible, f)
	}
	return eligible
}
