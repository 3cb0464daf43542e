package log

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	codeReset  = "\033[0m"
	codeDim    = "\033[2m"
	codeBold   = "\033[1m"
	codeRed    = "\033[31m"
	codeGreen  = "\033[32m"
	codeYellow = "\033[33m"
	codeCyan   = "\033[36m"
)

// ConsoleOptions configures a ConsoleHandler.
type ConsoleOptions struct {
	// Level is the minimum record level. Defaults to info.
	Level slog.Leveler
	// NoColor suppresses ANSI escape codes.
	NoColor bool
}

// ConsoleHandler renders records as single-line, human-readable output:
//
//	10:30:45.123 INFO  repository indexed repo=acme/widgets files=412
//
// Attributes with the key "error" or "err" are highlighted so failures
// stand out when scanning worker output.
type ConsoleHandler struct {
	w       io.Writer
	level   slog.Leveler
	noColor bool

	// prefix is the dotted group path applied to attribute keys.
	prefix string
	// bound holds attrs added via WithAttrs, pre-rendered.
	bound string

	mu *sync.Mutex
}

// NewConsoleHandler builds a console handler writing to w.
func NewConsoleHandler(w io.Writer, opts ConsoleOptions) *ConsoleHandler {
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}
	return &ConsoleHandler{
		w:       w,
		level:   level,
		noColor: opts.NoColor,
		mu:      &sync.Mutex{},
	}
}

// Enabled implements slog.Handler.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	buf.Grow(256)

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	h.paint(&buf, codeDim, ts.Format("15:04:05.000"))
	buf.WriteByte(' ')

	code, label := levelLabel(r.Level)
	h.paint(&buf, code, label)
	buf.WriteByte(' ')

	h.paint(&buf, codeBold, r.Message)

	buf.WriteString(h.bound)
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&buf, a, h.prefix)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

// WithAttrs implements slog.Handler. Attributes are rendered once here
// rather than on every record.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	var buf bytes.Buffer
	buf.WriteString(h.bound)
	for _, a := range attrs {
		h.writeAttr(&buf, a, h.prefix)
	}
	clone := *h
	clone.bound = buf.String()
	return &clone
}

// WithGroup implements slog.Handler.
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func (h *ConsoleHandler) writeAttr(buf *bytes.Buffer, a slog.Attr, prefix string) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		sub := prefix
		if a.Key != "" {
			sub = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			h.writeAttr(buf, ga, sub)
		}
		return
	}

	buf.WriteByte(' ')
	h.paint(buf, codeDim, prefix+a.Key+"=")
	if a.Key == "error" || a.Key == "err" {
		h.paint(buf, codeRed, renderValue(a.Value))
		return
	}
	buf.WriteString(renderValue(a.Value))
}

// paint writes s wrapped in the given ANSI code unless colour is off.
func (h *ConsoleHandler) paint(buf *bytes.Buffer, code, s string) {
	if h.noColor {
		buf.WriteString(s)
		return
	}
	buf.WriteString(code)
	buf.WriteString(s)
	buf.WriteString(codeReset)
}

func levelLabel(level slog.Level) (code, label string) {
	switch {
	case level < slog.LevelInfo:
		return codeCyan, "DEBUG"
	case level < slog.LevelWarn:
		return codeGreen, "INFO "
	case level < slog.LevelError:
		return codeYellow, "WARN "
	default:
		return codeRed, "ERROR"
	}
}

func renderValue(v slog.Value) string {
	s := v.String()
	if v.Kind() == slog.KindString && strings.ContainsAny(s, " \t\n\"\\=") {
		return strconv.Quote(s)
	}
	return s
}
