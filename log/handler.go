package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var levelColor = map[slog.Level]int{
	LevelTrace:     90, // gray
	slog.LevelDebug: 36, // cyan
	slog.LevelInfo:  32, // green
	slog.LevelWarn:  33, // yellow
	slog.LevelError: 31, // red
	LevelCrit:       35, // magenta
}

var levelName = map[slog.Level]string{
	LevelTrace:      "TRCE",
	slog.LevelDebug: "DBUG",
	slog.LevelInfo:  "INFO",
	slog.LevelWarn:  "WARN",
	slog.LevelError: "EROR",
	LevelCrit:       "CRIT",
}

// TerminalHandler is a slog.Handler that renders records as
// "LVL[timestamp] msg key=value ...", colorizing the level name when
// useColor is set.
type TerminalHandler struct {
	mu       sync.Mutex
	out      io.Writer
	useColor bool
	attrs    []slog.Attr
}

// NewTerminalHandler builds a TerminalHandler writing to out.
func NewTerminalHandler(out io.Writer, useColor bool) *TerminalHandler {
	return &TerminalHandler{out: out, useColor: useColor}
}

func (h *TerminalHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *TerminalHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	name, ok := levelName[r.Level]
	if !ok {
		name = r.Level.String()
	}
	var line string
	if h.useColor {
		line = fmt.Sprintf("\x1b[%dm%s\x1b[0m[%s] %s", levelColor[r.Level], name,
			r.Time.Format(time.RFC3339Nano), r.Message)
	} else {
		line = fmt.Sprintf("%s[%s] %s", name, r.Time.Format(time.RFC3339Nano), r.Message)
	}

	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	for _, a := range attrs {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value.Any())
	}
	if !h.useColor {
		line = Uncolor(line)
	}
	_, err := fmt.Fprintln(h.out, line)
	return err
}

func (h *TerminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, h.attrs...), attrs...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Key < merged[j].Key })
	return &TerminalHandler{out: h.out, useColor: h.useColor, attrs: merged}
}

func (h *TerminalHandler) WithGroup(name string) slog.Handler { return h }

// NewRotatingFileHandler builds a slog.Handler that writes uncolored,
// newline-delimited records to a size- and age-rotated log file.
func NewRotatingFileHandler(path string, maxSizeMB, maxBackups, maxAgeDays int) slog.Handler {
	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	return NewTerminalHandler(sink, false)
}
