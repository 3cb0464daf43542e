package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqlLogCap bounds the SQL text attached to a log record.
const sqlLogCap = 300

// slowQueryThreshold marks queries worth a warning even when they succeed.
const slowQueryThreshold = 250 * time.Millisecond

// queryLogger forwards GORM's logging callbacks to slog. Successful
// queries log at debug, slow ones at warn, failures at error.
// ErrRecordNotFound counts as success: it is the ordinary empty result
// of First().
type queryLogger struct{}

func (queryLogger) LogMode(logger.LogLevel) logger.Interface { return queryLogger{} }

func (queryLogger) Info(_ context.Context, msg string, args ...any) {
	slog.Info(fmt.Sprintf(msg, args...))
}

func (queryLogger) Warn(_ context.Context, msg string, args ...any) {
	slog.Warn(fmt.Sprintf(msg, args...))
}

func (queryLogger) Error(_ context.Context, msg string, args ...any) {
	slog.Error(fmt.Sprintf(msg, args...))
}

func (queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		slog.Error("query failed",
			"sql", clipSQL(sql), "rows", rows, "elapsed", elapsed, "error", err)
	case elapsed >= slowQueryThreshold:
		sql, rows := fc()
		slog.Warn("slow query",
			"sql", clipSQL(sql), "rows", rows, "elapsed", elapsed)
	case slog.Default().Enabled(ctx, slog.LevelDebug):
		// fc formats the full SQL; skip it entirely above debug level.
		sql, rows := fc()
		slog.Debug("query",
			"sql", clipSQL(sql), "rows", rows, "elapsed", elapsed)
	}
}

// clipSQL truncates long statements, keeping the head where the verb and
// table name live.
func clipSQL(sql string) string {
	if len(sql) <= sqlLogCap {
		return sql
	}
	return fmt.Sprintf("%s... (%d bytes)", sql[:sqlLogCap], len(sql))
}
