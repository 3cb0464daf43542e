// Package log builds the slog loggers used by the codelore commands.
// Log output always goes to stderr: when the MCP server runs over stdio,
// stdout belongs to the protocol.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/codelore/codelore/internal/config"
)

// New builds a logger from the application configuration. The pretty
// format uses the console handler, json uses slog's JSON handler.
func New(cfg config.AppConfig) *slog.Logger {
	return NewWithWriter(os.Stderr, cfg.LogFormat(), cfg.LogLevel())
}

// NewWithWriter builds a logger that writes to w.
func NewWithWriter(w io.Writer, format config.LogFormat, level string) *slog.Logger {
	lvl := ParseLevel(level)

	var handler slog.Handler
	switch format {
	case config.LogFormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	default:
		handler = NewConsoleHandler(w, ConsoleOptions{
			Level:   lvl,
			NoColor: colorDisabled(w),
		})
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog level. Unknown names fall back
// to info rather than failing, so a typo in LOG_LEVEL never silences
// the process.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// colorDisabled reports whether ANSI colours should be suppressed for w.
// Honours the NO_COLOR convention and dumb terminals; writers that are
// not the process's own stderr/stdout (test buffers, files) get plain
// output too.
func colorDisabled(w io.Writer) bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return true
	}
	if os.Getenv("TERM") == "dumb" {
		return true
	}
	f, ok := w.(*os.File)
	if !ok {
		return true
	}
	return f != os.Stderr && f != os.Stdout
}
