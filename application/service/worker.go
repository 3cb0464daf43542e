package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codelore/codelore/domain/task"
)

// WorkerTracker records the terminal state of a finished task.
type WorkerTracker interface {
	Fail(ctx context.Context, message string)
	Complete(ctx context.Context)
}

// WorkerTrackerFactory builds trackers for task status updates.
type WorkerTrackerFactory interface {
	ForOperation(operation task.Operation, trackableType task.TrackableType, trackableID int64) WorkerTracker
}

// Handler executes one task operation.
type Handler interface {
	Execute(ctx context.Context, payload map[string]any) error
}

// Registry maps operations to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[task.Operation]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[task.Operation]Handler)}
}

// Register binds a handler to an operation, replacing any previous one.
func (r *Registry) Register(operation task.Operation, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[operation] = handler
}

// Handler looks up the handler for an operation.
func (r *Registry) Handler(operation task.Operation) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[operation]
	return h, ok
}

// HasHandler reports whether an operation is covered.
func (r *Registry) HasHandler(operation task.Operation) bool {
	_, ok := r.Handler(operation)
	return ok
}

// Operations lists the registered operations in no particular order.
func (r *Registry) Operations() []task.Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops := make([]task.Operation, 0, len(r.handlers))
	for op := range r.handlers {
		ops = append(ops, op)
	}
	return ops
}

// Worker drains the task queue in a background goroutine. One task runs
// at a time; tasks are deleted once handled, whether they succeeded or
// not, so a poisoned task can never wedge the queue.
type Worker struct {
	store          task.TaskStore
	registry       *Registry
	trackerFactory WorkerTrackerFactory
	logger         *slog.Logger
	pollPeriod     time.Duration

	busy   atomic.Bool
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a worker over the given store and registry.
func NewWorker(store task.TaskStore, registry *Registry, trackerFactory WorkerTrackerFactory, logger *slog.Logger) *Worker {
	return &Worker{
		store:          store,
		registry:       registry,
		trackerFactory: trackerFactory,
		logger:         logger,
		pollPeriod:     time.Second,
	}
}

// WithPollPeriod sets how long the worker sleeps when the queue is empty.
func (w *Worker) WithPollPeriod(d time.Duration) *Worker {
	w.pollPeriod = d
	return w
}

// Start launches the worker goroutine. Stop shuts it down.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()

	w.logger.Info("queue worker started")
}

// Stop cancels the worker and waits for the in-flight task to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	w.logger.Info("queue worker stopped")
}

// Busy reports whether a task is executing right now.
func (w *Worker) Busy() bool {
	return w.busy.Load()
}

// ProcessOne dequeues and handles a single task synchronously. It
// reports whether a task was found. Used by tests to step the queue
// without the background goroutine.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	t, found, err := w.store.Dequeue(ctx)
	if err != nil || !found {
		return false, err
	}
	return true, w.handle(ctx, t)
}

// run drains the queue back to back, then sleeps for the poll period
// once it runs dry.
func (w *Worker) run(ctx context.Context) {
	for {
		processed, err := w.ProcessOne(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.logger.Error("task processing error", slog.String("error", err.Error()))
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollPeriod):
		}
	}
}

func (w *Worker) handle(ctx context.Context, t task.Task) error {
	w.busy.Store(true)
	defer w.busy.Store(false)

	logger := w.logger.With(
		slog.Int64("task_id", t.ID()),
		slog.String("operation", t.Operation().String()),
	)

	h, ok := w.registry.Handler(t.Operation())
	if !ok {
		logger.Error("no handler for operation, dropping task")
		return w.store.Delete(ctx, t)
	}

	logger.Info("processing task")
	start := time.Now()

	if err := w.execute(ctx, h, t); err != nil {
		logger.Error("task failed", slog.String("error", err.Error()))
		w.report(ctx, t, err)
		return w.store.Delete(ctx, t)
	}

	w.report(ctx, t, nil)
	logger.Info("task completed", slog.Duration("elapsed", time.Since(start)))
	return w.store.Delete(ctx, t)
}

// execute runs the handler, converting a panic into an error so one bad
// payload does not take the worker down.
func (w *Worker) execute(ctx context.Context, h Handler, t task.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Execute(ctx, t.Payload())
}

// report writes the task's terminal state to the status tracker, when
// the task is addressed to a repository.
func (w *Worker) report(ctx context.Context, t task.Task, taskErr error) {
	if w.trackerFactory == nil {
		return
	}
	repoID := taskRepositoryID(t)
	if repoID == 0 {
		return
	}

	tracker := w.trackerFactory.ForOperation(t.Operation(), task.TrackableTypeRepository, repoID)
	if taskErr != nil {
		tracker.Fail(ctx, taskErr.Error())
		return
	}
	tracker.Complete(ctx)
}
