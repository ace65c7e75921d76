// Package logging holds the engine's logger. It is silent until SetLogger
// installs one.
package logging

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	logger atomic.Pointer[slog.Logger]

	mu     sync.Mutex
	depth  int
	active atomic.Bool
)

func init() {
	logger.Store(slog.New(nopHandler{}))
}

// SetLogger installs l as the engine logger. Passing nil restores the
// silent default.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	logger.Store(slog.New(&gate{next: l.Handler()}))
}

// Logger returns the engine logger.
func Logger() *slog.Logger {
	return logger.Load()
}

// Suppress drops records below Warn until the returned function is called.
// Calls nest.
func Suppress() (restore func()) {
	mu.Lock()
	depth++
	active.Store(true)
	mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			mu.Lock()
			depth--
			active.Store(depth > 0)
			mu.Unlock()
		})
	}
}

// Suppressed reports whether a Suppress call is active.
func Suppressed() bool {
	return active.Load()
}

type gate struct {
	next slog.Handler
}

func (g *gate) Enabled(ctx context.Context, level slog.Level) bool {
	if active.Load() && level < slog.LevelWarn {
		return false
	}
	return g.next.Enabled(ctx, level)
}

func (g *gate) Handle(ctx context.Context, r slog.Record) error {
	return g.next.Handle(ctx, r)
}

func (g *gate) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &gate{next: g.next.WithAttrs(attrs)}
}

func (g *gate) WithGroup(name string) slog.Handler {
	return &gate{next: g.next.WithGroup(name)}
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }
