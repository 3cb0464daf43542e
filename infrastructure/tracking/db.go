package tracking

import (
	"context"
	"log/slog"

	"github.com/codelore/codelore/domain/task"
)

// DBReporter implements Reporter by persisting status changes to the database.
type DBReporter struct {
	store  task.StatusStore
	logger *slog.Logger
}

// NewDBReporter creates a new DBReporter.
func NewDBReporter(store task.StatusStore, logger *slog.Logger) *DBReporter {
	return &DBReporter{
		store:  store,
		logger: logger,
	}
}

// OnChange persists the task status to the database.
func (r *DBReporter) OnChange(ctx context.Context, status task.Status) error {
	_, err := r.store.Save(ctx, status)
	if err != nil {
		r.logger.Error("failed to save task status",
			slog.String("error", err.Error()),
			slog.String("operation", status.Operation().String()),
		)
		return err
	}
	return nil
}
