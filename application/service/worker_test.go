package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memTaskStore is an in-memory TaskStore with the real store's
// semantics: dedup on save, priority-ordered dequeue.
type memTaskStore struct {
	mu     sync.Mutex
	nextID int64
	tasks  []task.Task
}

func (s *memTaskStore) Save(_ context.Context, t task.Task) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.tasks {
		if existing.DedupKey() == t.DedupKey() {
			if t.Priority() > existing.Priority() {
				s.tasks[i] = task.NewTaskWithID(existing.ID(), existing.DedupKey(),
					existing.Operation(), t.Priority(), existing.Payload(),
					existing.CreatedAt(), existing.UpdatedAt())
			}
			return s.tasks[i], nil
		}
	}
	s.nextID++
	saved := t.WithID(s.nextID)
	s.tasks = append(s.tasks, saved)
	return saved, nil
}

func (s *memTaskStore) Get(_ context.Context, id int64) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID() == id {
			return t, nil
		}
	}
	return task.Task{}, errors.New("task not found")
}

func (s *memTaskStore) FindAll(_ context.Context) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]task.Task(nil), s.tasks...), nil
}

func (s *memTaskStore) FindPending(_ context.Context, _ ...repo.Option) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := append([]task.Task(nil), s.tasks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})
	return sorted, nil
}

func (s *memTaskStore) CountPending(_ context.Context, _ ...repo.Option) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.tasks)), nil
}

func (s *memTaskStore) Delete(_ context.Context, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.tasks {
		if existing.ID() == t.ID() {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *memTaskStore) Dequeue(ctx context.Context) (task.Task, bool, error) {
	pending, _ := s.FindPending(ctx)
	if len(pending) == 0 {
		return task.Task{}, false, nil
	}
	head := pending[0]
	_ = s.Delete(ctx, head)
	return head, true, nil
}

// recordingHandler captures the payloads it is invoked with.
type recordingHandler struct {
	mu       sync.Mutex
	payloads []map[string]any
	err      error
	panics   bool
}

func (h *recordingHandler) Execute(_ context.Context, payload map[string]any) error {
	if h.panics {
		panic("handler exploded")
	}
	h.mu.Lock()
	h.payloads = append(h.payloads, payload)
	h.mu.Unlock()
	return h.err
}

// recordingTrackerFactory captures terminal state reports.
type recordingTrackerFactory struct {
	mu        sync.Mutex
	failed    []string
	completed []task.Operation
}

type recordingTracker struct {
	factory *recordingTrackerFactory
	op      task.Operation
}

func (f *recordingTrackerFactory) ForOperation(op task.Operation, _ task.TrackableType, _ int64) WorkerTracker {
	return &recordingTracker{factory: f, op: op}
}

func (t *recordingTracker) Fail(_ context.Context, message string) {
	t.factory.mu.Lock()
	defer t.factory.mu.Unlock()
	t.factory.failed = append(t.factory.failed, message)
}

func (t *recordingTracker) Complete(_ context.Context) {
	t.factory.mu.Lock()
	defer t.factory.mu.Unlock()
	t.factory.completed = append(t.factory.completed, t.op)
}

func TestWorker_ProcessOneExecutesHandler(t *testing.T) {
	ctx := context.Background()
	store := &memTaskStore{}
	registry := NewRegistry()
	handler := &recordingHandler{}
	registry.Register(task.OperationIndexContent, handler)

	queue := NewQueue(store, testLogger())
	require.NoError(t, queue.Enqueue(ctx, task.NewTask(task.OperationIndexContent,
		int(task.PriorityNormal), map[string]any{"repository_id": int64(7)})))

	worker := NewWorker(store, registry, nil, testLogger())
	processed, err := worker.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	require.Len(t, handler.payloads, 1)
	assert.Equal(t, int64(7), handler.payloads[0]["repository_id"])

	count, err := queue.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "handled task should be deleted")
}

func TestWorker_ProcessOneEmptyQueue(t *testing.T) {
	worker := NewWorker(&memTaskStore{}, NewRegistry(), nil, testLogger())

	processed, err := worker.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestWorker_DropsTaskWithoutHandler(t *testing.T) {
	ctx := context.Background()
	store := &memTaskStore{}
	queue := NewQueue(store, testLogger())
	require.NoError(t, queue.Enqueue(ctx, task.NewTask(task.OperationBuildGraph,
		int(task.PriorityNormal), nil)))

	worker := NewWorker(store, NewRegistry(), nil, testLogger())
	processed, err := worker.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	count, err := queue.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "unhandled task should still be deleted")
}

func TestWorker_RecoversFromPanic(t *testing.T) {
	ctx := context.Background()
	store := &memTaskStore{}
	registry := NewRegistry()
	registry.Register(task.OperationExtractEntities, &recordingHandler{panics: true})

	queue := NewQueue(store, testLogger())
	require.NoError(t, queue.Enqueue(ctx, task.NewTask(task.OperationExtractEntities,
		int(task.PriorityNormal), nil)))

	worker := NewWorker(store, registry, nil, testLogger())
	processed, err := worker.ProcessOne(ctx)
	assert.True(t, processed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler panicked")

	count, err := queue.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestWorker_ReportsTerminalStates(t *testing.T) {
	ctx := context.Background()
	store := &memTaskStore{}
	registry := NewRegistry()
	registry.Register(task.OperationIndexContent, &recordingHandler{})
	registry.Register(task.OperationBuildGraph, &recordingHandler{err: errors.New("graph store down")})
	factory := &recordingTrackerFactory{}

	queue := NewQueue(store, testLogger())
	payload := map[string]any{"repository_id": int64(3)}
	require.NoError(t, queue.Enqueue(ctx, task.NewTask(task.OperationIndexContent, 20, payload)))
	require.NoError(t, queue.Enqueue(ctx, task.NewTask(task.OperationBuildGraph, 10, payload)))

	worker := NewWorker(store, registry, factory, testLogger())
	_, err := worker.ProcessOne(ctx)
	require.NoError(t, err)
	_, err = worker.ProcessOne(ctx)
	require.Error(t, err)

	assert.Equal(t, []task.Operation{task.OperationIndexContent}, factory.completed)
	require.Len(t, factory.failed, 1)
	assert.Contains(t, factory.failed[0], "graph store down")
}

func TestQueue_EnqueueOperationsPreservesOrder(t *testing.T) {
	ctx := context.Background()
	store := &memTaskStore{}
	queue := NewQueue(store, testLogger())

	pipeline := []task.Operation{
		task.OperationConnectRepository,
		task.OperationAnalyzeStructure,
		task.OperationIndexContent,
	}
	payload := map[string]any{"repository_id": int64(1)}
	require.NoError(t, queue.EnqueueOperations(ctx, pipeline, task.PriorityNormal, payload))

	for _, want := range pipeline {
		got, found, err := store.Dequeue(ctx)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, want, got.Operation())
	}
}

func TestQueue_ListFiltersByOperation(t *testing.T) {
	ctx := context.Background()
	store := &memTaskStore{}
	queue := NewQueue(store, testLogger())

	require.NoError(t, queue.Enqueue(ctx, task.NewTask(task.OperationIndexContent, 10,
		map[string]any{"repository_id": int64(1)})))
	require.NoError(t, queue.Enqueue(ctx, task.NewTask(task.OperationBuildGraph, 20,
		map[string]any{"repository_id": int64(1)})))

	op := task.OperationBuildGraph
	tasks, err := queue.List(ctx, &TaskListParams{Operation: &op})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.OperationBuildGraph, tasks[0].Operation())
}

func TestQueue_DrainForRepository(t *testing.T) {
	ctx := context.Background()
	store := &memTaskStore{}
	queue := NewQueue(store, testLogger())

	require.NoError(t, queue.Enqueue(ctx, task.NewTask(task.OperationIndexContent, 10,
		map[string]any{"repository_id": int64(1)})))
	require.NoError(t, queue.Enqueue(ctx, task.NewTask(task.OperationIndexContent, 10,
		map[string]any{"repository_id": int64(2)})))

	removed, err := queue.DrainForRepository(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	remaining, err := queue.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, int64(2), taskRepositoryID(remaining[0]))
}

func TestRegistry_Lookup(t *testing.T) {
	registry := NewRegistry()
	assert.False(t, registry.HasHandler(task.OperationIndexContent))

	registry.Register(task.OperationIndexContent, &recordingHandler{})
	registry.Register(task.OperationBuildGraph, &recordingHandler{})

	assert.True(t, registry.HasHandler(task.OperationIndexContent))
	_, ok := registry.Handler(task.OperationBuildGraph)
	assert.True(t, ok)
	assert.ElementsMatch(t,
		[]task.Operation{task.OperationIndexContent, task.OperationBuildGraph},
		registry.Operations())
}
