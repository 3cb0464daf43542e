package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestHandler(buf *bytes.Buffer) *ConsoleHandler {
	return NewConsoleHandler(buf, ConsoleOptions{Level: slog.LevelDebug, NoColor: true})
}

func TestConsoleHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	h := newTestHandler(&buf)

	ts := time.Date(2026, 1, 15, 10, 30, 45, 123000000, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "repository indexed", 0)
	r.AddAttrs(slog.String("repo", "acme/widgets"), slog.Int("files", 412))

	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}

	got := buf.String()
	want := "10:30:45.123 INFO  repository indexed repo=acme/widgets files=412\n"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestConsoleHandler_LevelLabels(t *testing.T) {
	tests := []struct {
		level slog.Level
		label string
	}{
		{slog.LevelDebug, "DEBUG"},
		{slog.LevelInfo, "INFO"},
		{slog.LevelWarn, "WARN"},
		{slog.LevelError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			var buf bytes.Buffer
			h := newTestHandler(&buf)

			r := slog.NewRecord(time.Now(), tt.level, "msg", 0)
			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error: %v", err)
			}
			if !strings.Contains(buf.String(), tt.label) {
				t.Errorf("expected label %q in output %q", tt.label, buf.String())
			}
		})
	}
}

func TestConsoleHandler_Enabled(t *testing.T) {
	h := NewConsoleHandler(&bytes.Buffer{}, ConsoleOptions{Level: slog.LevelWarn, NoColor: true})

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestConsoleHandler_QuotesAwkwardStrings(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newTestHandler(&buf))

	logger.Info("clone failed", "detail", "exit status 128: not found")

	if !strings.Contains(buf.String(), `detail="exit status 128: not found"`) {
		t.Errorf("expected quoted value, got: %s", buf.String())
	}
}

func TestConsoleHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newTestHandler(&buf)).
		With("component", "worker").
		WithGroup("task").
		With("operation", "index_content")

	logger.Info("task started", "attempt", 2)

	got := buf.String()
	for _, want := range []string{"component=worker", "task.operation=index_content", "task.attempt=2"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output: %s", want, got)
		}
	}
}

func TestConsoleHandler_InlineGroupAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newTestHandler(&buf))

	logger.Info("connected", slog.Group("db", slog.String("driver", "sqlite")))

	if !strings.Contains(buf.String(), "db.driver=sqlite") {
		t.Errorf("expected dotted group key, got: %s", buf.String())
	}
}

func TestConsoleHandler_ColourToggle(t *testing.T) {
	var plain, colour bytes.Buffer

	r := slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)
	r.AddAttrs(slog.String("error", "disk full"))

	if err := newTestHandler(&plain).Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	ch := NewConsoleHandler(&colour, ConsoleOptions{Level: slog.LevelDebug})
	if err := ch.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}

	if strings.Contains(plain.String(), "\033[") {
		t.Errorf("NoColor output contains escape codes: %q", plain.String())
	}
	if !strings.Contains(colour.String(), codeRed) {
		t.Errorf("coloured output should paint the error attr: %q", colour.String())
	}
}
