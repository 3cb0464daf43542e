package tracking

import (
	"context"
	"log/slog"

	"github.com/codelore/codelore/domain/task"
)

// LoggingReporter writes status changes to the log. Progress ticks go
// out at debug so a busy pipeline does not flood the output; terminal
// states land at info, failures at error.
type LoggingReporter struct {
	logger *slog.Logger
}

// NewLoggingReporter creates a reporter over the given logger.
func NewLoggingReporter(logger *slog.Logger) *LoggingReporter {
	return &LoggingReporter{logger: logger}
}

// OnChange implements Reporter. It never returns an error; a log line
// that cannot be written is not worth failing a pipeline over.
func (r *LoggingReporter) OnChange(ctx context.Context, status task.Status) error {
	attrs := []slog.Attr{
		slog.String("state", string(status.State())),
		slog.String("trackable", string(status.TrackableType())),
		slog.Int64("trackable_id", status.TrackableID()),
		slog.Float64("percent", status.CompletionPercent()),
	}
	if msg := status.Message(); msg != "" {
		attrs = append(attrs, slog.String("message", msg))
	}

	level := slog.LevelDebug
	switch status.State() {
	case task.ReportingStateFailed:
		level = slog.LevelError
		attrs = append(attrs, slog.String("error", status.Error()))
	case task.ReportingStateCompleted, task.ReportingStateSkipped:
		level = slog.LevelInfo
	}

	r.logger.LogAttrs(ctx, level, status.Operation().String(), attrs...)
	return nil
}
