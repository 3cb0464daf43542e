// Package ingestion provides the task handlers that drive a repository
// through the ingestion pipeline, from the first source-host handshake to
// the fully indexed Ready state.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codelore/codelore/application/handler"
	"github.com/codelore/codelore/domain/event"
	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/task"
	"github.com/codelore/codelore/infrastructure/source"
	"github.com/codelore/codelore/internal/retry"
)

// commitHistoryLimit caps the commit listing recorded on connect. Deep
// history adds nothing to analysis and inflates the clone.
const commitHistoryLimit = 100

// Connect handles the initial source-host handshake for a repository:
// access validation, remote metadata, branch listing, and recent commit
// history. Source calls retry transient faults per the configured policy;
// the repository moves to Error only once the budget is exhausted or the
// fault is permanent.
type Connect struct {
	repos          repo.Store
	branches       repo.BranchStore
	commits        repo.CommitStore
	adapter        source.Adapter
	cred           source.Credential
	policy         retry.Policy
	bus            event.Publisher
	trackerFactory handler.TrackerFactory
	logger         *slog.Logger
}

// NewConnect creates a new Connect handler.
func NewConnect(
	repos repo.Store,
	branches repo.BranchStore,
	commits repo.CommitStore,
	adapter source.Adapter,
	cred source.Credential,
	bus event.Publisher,
	trackerFactory handler.TrackerFactory,
	logger *slog.Logger,
) *Connect {
	return &Connect{
		repos:          repos,
		branches:       branches,
		commits:        commits,
		adapter:        adapter,
		cred:           cred,
		policy:         retry.DefaultPolicy(),
		bus:            bus,
		trackerFactory: trackerFactory,
		logger:         logger,
	}
}

// WithRetryPolicy replaces the retry policy for source calls.
func (h *Connect) WithRetryPolicy(policy retry.Policy) *Connect {
	h.policy = policy
	return h
}

// Execute processes the connect task for one repository.
func (h *Connect) Execute(ctx context.Context, payload map[string]any) error {
	repositoryID, err := handler.ExtractInt64(payload, "repository_id")
	if err != nil {
		return err
	}

	tracker := h.trackerFactory.ForOperation(
		task.OperationConnectRepository,
		task.TrackableTypeRepository,
		repositoryID,
	)

	repository, err := h.repos.FindOne(ctx, repo.WithID(repositoryID))
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return fmt.Errorf("get repository: %w", err)
	}

	if repository.Status() != repo.StatusConnecting {
		tracker.Skip(ctx, "Repository already connected")
		return nil
	}

	tracker.SetTotal(ctx, 4)
	tracker.SetCurrent(ctx, 0, "Validating access")

	accessible, err := retry.DoResult(ctx, h.policy, func(ctx context.Context) (bool, error) {
		return h.adapter.ValidateAccess(ctx, repository.URL(), h.cred)
	})
	if err != nil {
		return h.fail(ctx, tracker, repository, fmt.Errorf("validate access: %w", err))
	}
	if !accessible {
		return h.fail(ctx, tracker, repository,
			fault.New(fault.KindSourceAuth, "repository is not accessible with the configured credential"))
	}

	tracker.SetCurrent(ctx, 1, "Fetching remote metadata")

	meta, err := retry.DoResult(ctx, h.policy, func(ctx context.Context) (repo.RemoteMetadata, error) {
		return h.adapter.ConnectRepository(ctx, repository.URL(), h.cred)
	})
	if err != nil {
		return h.fail(ctx, tracker, repository, fmt.Errorf("connect repository: %w", err))
	}
	repository = repository.WithMetadata(meta)

	connected, err := repository.Transition(repo.StatusConnected)
	if err != nil {
		return h.fail(ctx, tracker, repository, err)
	}
	repository, err = h.repos.Save(ctx, connected)
	if err != nil {
		return h.fail(ctx, tracker, connected, fmt.Errorf("save repository: %w", err))
	}
	h.bus.Publish(ctx, event.NewRepositoryStatusChanged(
		repository.ID(), repository.FullName(),
		repo.StatusConnecting.String(), repo.StatusConnected.String(),
	))

	tracker.SetCurrent(ctx, 2, "Listing branches")

	branches, err := retry.DoResult(ctx, h.policy, func(ctx context.Context) ([]repo.Branch, error) {
		return h.adapter.ListBranches(ctx, repository, h.cred)
	})
	if err != nil {
		return h.fail(ctx, tracker, repository, fmt.Errorf("list branches: %w", err))
	}
	if _, err := h.branches.ReplaceForRepository(ctx, repository.ID(), branches); err != nil {
		return h.fail(ctx, tracker, repository, fmt.Errorf("save branches: %w", err))
	}

	tracker.SetCurrent(ctx, 3, "Recording commit history")

	commits, err := retry.DoResult(ctx, h.policy, func(ctx context.Context) ([]repo.Commit, error) {
		return h.adapter.ListCommits(ctx, repository, "", commitHistoryLimit, h.cred)
	})
	if err != nil {
		return h.fail(ctx, tracker, repository, fmt.Errorf("list commits: %w", err))
	}
	if _, err := h.commits.SaveAll(ctx, commits); err != nil {
		return h.fail(ctx, tracker, repository, fmt.Errorf("save commits: %w", err))
	}

	h.logger.Info("repository connected",
		slog.Int64("repository_id", repository.ID()),
		slog.String("full_name", repository.FullName()),
		slog.Int("branches", len(branches)),
		slog.Int("commits", len(commits)),
	)
	tracker.Complete(ctx)
	return nil
}

// fail records the diagnostic on the repository, publishes it, and marks
// the task failed. The original cause is always returned.
func (h *Connect) fail(ctx context.Context, tracker handler.Tracker, repository repo.Repository, cause error) error {
	failRepository(ctx, h.repos, h.bus, h.logger, repository, cause)
	tracker.Fail(ctx, cause.Error())
	return cause
}

// failRepository moves a repository to Error with the cause as diagnostic
// and publishes the status change and diagnostic events. Persistence
// failures are logged and swallowed so the original cause survives.
func failRepository(
	ctx context.Context,
	repos repo.Store,
	bus event.Publisher,
	logger *slog.Logger,
	repository repo.Repository,
	cause error,
) {
	from := repository.Status()
	failed, err := repository.Fail(cause.Error())
	if err != nil {
		logger.Error("repository error transition rejected",
			slog.Int64("repository_id", repository.ID()),
			slog.String("error", err.Error()),
		)
		return
	}
	if _, err := repos.Save(ctx, failed); err != nil {
		logger.Error("repository error state not persisted",
			slog.Int64("repository_id", repository.ID()),
			slog.String("error", err.Error()),
		)
		return
	}
	bus.Publish(ctx,
		event.NewRepositoryStatusChanged(
			repository.ID(), repository.FullName(),
			from.String(), repo.StatusError.String(),
		),
		event.NewRepositoryDiagnostic(
			repository.ID(), repository.FullName(),
			fault.KindOf(cause).String(), cause.Error(),
		),
	)
}
