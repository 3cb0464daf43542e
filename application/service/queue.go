package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/task"
)

// TaskListParams narrows what List returns.
type TaskListParams struct {
	Operation *task.Operation
	Limit     int
	Offset    int
}

// Queue enqueues and inspects pending background tasks. Ordering is the
// store's: highest priority first, oldest first within a priority.
type Queue struct {
	store  task.TaskStore
	logger *slog.Logger
}

// NewQueue creates the queue service.
func NewQueue(store task.TaskStore, logger *slog.Logger) *Queue {
	return &Queue{store: store, logger: logger}
}

// Enqueue adds one task. Saving an existing dedup key bumps that task's
// priority instead of creating a duplicate.
func (s *Queue) Enqueue(ctx context.Context, t task.Task) error {
	if _, err := s.store.Save(ctx, t); err != nil {
		return err
	}
	s.logger.Debug("task enqueued",
		slog.String("operation", t.Operation().String()),
		slog.String("dedup_key", t.DedupKey()),
		slog.Int("priority", t.Priority()),
	)
	return nil
}

// EnqueueOperations queues a pipeline of operations sharing one payload.
// Earlier operations get higher priority so the worker runs them in the
// listed order.
func (s *Queue) EnqueueOperations(
	ctx context.Context,
	operations []task.Operation,
	basePriority task.Priority,
	payload map[string]any,
) error {
	for i, op := range operations {
		priority := int(basePriority) + (len(operations)-i)*10
		if err := s.Enqueue(ctx, task.NewTask(op, priority, payload)); err != nil {
			return fmt.Errorf("enqueue %s: %w", op, err)
		}
	}
	return nil
}

// List returns pending tasks, optionally paginated and filtered to one
// operation.
func (s *Queue) List(ctx context.Context, params *TaskListParams) ([]task.Task, error) {
	var options []repo.Option
	if params != nil && params.Limit > 0 {
		options = append(options, repo.WithPagination(params.Limit, params.Offset)...)
	}

	tasks, err := s.store.FindPending(ctx, options...)
	if err != nil {
		return nil, err
	}
	if params == nil || params.Operation == nil {
		return tasks, nil
	}

	matched := tasks[:0]
	for _, t := range tasks {
		if t.Operation() == *params.Operation {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

// Count returns the number of pending tasks.
func (s *Queue) Count(ctx context.Context) (int64, error) {
	return s.store.CountPending(ctx)
}

// Get retrieves a task by ID.
func (s *Queue) Get(ctx context.Context, id int64) (task.Task, error) {
	return s.store.Get(ctx, id)
}

// DrainForRepository deletes every pending task addressed to the given
// repository, so removal is not raced by stale pipeline stages.
func (s *Queue) DrainForRepository(ctx context.Context, repoID int64) (int, error) {
	tasks, err := s.store.FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("find pending tasks: %w", err)
	}

	removed := 0
	for _, t := range tasks {
		if taskRepositoryID(t) != repoID {
			continue
		}
		if err := s.store.Delete(ctx, t); err != nil {
			return removed, fmt.Errorf("delete task %d: %w", t.ID(), err)
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("drained pending tasks",
			slog.Int64("repository_id", repoID),
			slog.Int("removed", removed),
		)
	}
	return removed, nil
}

// taskRepositoryID reads the repository_id payload field, tolerating the
// numeric types JSON round-trips produce. Zero means absent.
func taskRepositoryID(t task.Task) int64 {
	switch v := t.Payload()["repository_id"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}
