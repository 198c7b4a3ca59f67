// Package log provides the key-value structured logger used throughout this
// module, wrapping the standard library's log/slog the way go-ethereum's own
// log package does.
package log

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Logger writes key-value structured log records, mirroring slog.Logger's
// shape but keeping the small, stable surface the rest of this module calls.
type Logger interface {
	With(ctx ...interface{}) Logger
	New(ctx ...interface{}) Logger

	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})

	Write(level slog.Level, msg string, ctx ...interface{})
	Enabled(ctx context.Context, level slog.Level) bool
	Handler() slog.Handler
}

const (
	LevelTrace = slog.Level(-8)
	LevelCrit  = slog.Level(12)
)

type logger struct{ inner *slog.Logger }

func (l *logger) Write(level slog.Level, msg string, ctx ...interface{}) {
	l.inner.Log(context.Background(), level, msg, ctx...)
}

func (l *logger) With(ctx ...interface{}) Logger  { return &logger{l.inner.With(ctx...)} }
func (l *logger) New(ctx ...interface{}) Logger    { return l.With(ctx...) }
func (l *logger) Trace(msg string, ctx ...interface{}) { l.Write(LevelTrace, msg, ctx...) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.Write(slog.LevelDebug, msg, ctx...) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.Write(slog.LevelInfo, msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.Write(slog.LevelWarn, msg, ctx...) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.Write(slog.LevelError, msg, ctx...) }
func (l *logger) Crit(msg string, ctx ...interface{}) {
	l.Write(LevelCrit, msg, ctx...)
	os.Exit(1)
}
func (l *logger) Enabled(ctx context.Context, level slog.Level) bool {
	return l.inner.Enabled(ctx, level)
}
func (l *logger) Handler() slog.Handler { return l.inner.Handler() }

// NewLogger builds a Logger that writes through the slog.Handler h.
func NewLogger(h slog.Handler) Logger { return &logger{slog.New(h)} }

var (
	root       atomic.Pointer[logger]
	rootInit   sync.Once
	stdoutIsTTY = isatty.IsTerminal(os.Stdout.Fd())
)

func defaultRoot() *logger {
	out := colorable.NewColorable(os.Stderr)
	h := NewTerminalHandler(out, stdoutIsTTY)
	return &logger{slog.New(h)}
}

// Root returns the root logger. Call SetDefault to replace it.
func Root() Logger {
	rootInit.Do(func() { root.Store(defaultRoot()) })
	return root.Load()
}

// SetDefault sets the logger returned by Root and used by the package-level
// Trace/Debug/Info/Warn/Error/Crit helpers.
func SetDefault(l Logger) {
	// Mark the lazy default as done so a later Root call cannot replace l.
	rootInit.Do(func() {})
	if inner, ok := l.(*logger); ok {
		root.Store(inner)
		return
	}
	root.Store(&logger{slog.New(l.Handler())})
}

func New(ctx ...interface{}) Logger { return Root().New(ctx...) }

func Trace(msg string, ctx ...interface{}) { Root().Write(LevelTrace, msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { Root().Write(slog.LevelDebug, msg, ctx...) }
func Info(msg string, ctx ...interface{})  { Root().Write(slog.LevelInfo, msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { Root().Write(slog.LevelWarn, msg, ctx...) }
func Error(msg string, ctx ...interface{}) { Root().Write(slog.LevelError, msg, ctx...) }
func Crit(msg string, ctx ...interface{})  { Root().Crit(msg, ctx...) }
