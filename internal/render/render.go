// Package render delivers display content to whatever draws it.
//
// The device's pixel pipeline lives outside this repository; brainball talks
// to it through the [Renderer] interface. Two renderers ship here: [Log],
// which writes a structured log line whenever the content changes, and
// [Hub], which streams content as JSON to websocket clients.
package render

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/MrWong99/brainball/internal/display"
)

// Renderer receives every frame produced by the render loop. Render must not
// block for long; implementations that do I/O buffer or drop.
type Renderer interface {
	Render(ctx context.Context, c display.Content) error
}

// Func adapts an ordinary function to [Renderer].
type Func func(ctx context.Context, c display.Content) error

// Render calls f.
func (f Func) Render(ctx context.Context, c display.Content) error { return f(ctx, c) }

// Multi fans a frame out to several renderers. Every renderer is called even
// if an earlier one fails; the errors are joined.
type Multi []Renderer

// Render implements [Renderer].
func (m Multi) Render(ctx context.Context, c display.Content) error {
	var errs []error
	for _, r := range m {
		if err := r.Render(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes content to a slog.Logger, skipping frames equal to the last one.
type Log struct {
	logger *slog.Logger

	mu   sync.Mutex
	last *display.Content
}

// NewLog returns a log renderer. A nil logger uses slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Render implements [Renderer].
func (l *Log) Render(ctx context.Context, c display.Content) error {
	l.mu.Lock()
	changed := l.last == nil || !l.last.Equal(c)
	if changed {
		l.last = &c
	}
	l.mu.Unlock()

	if changed {
		l.logger.InfoContext(ctx, "display", "content", c)
	}
	return nil
}
