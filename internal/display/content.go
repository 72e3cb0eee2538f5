// Package display assembles the value handed to the renderer on every tick.
//
// [Builder.Build] is a pure function of its [Input] plus whatever the resolver
// and the image cache answer; it performs no I/O of its own and never fails.
package display

import (
	"log/slog"

	"github.com/MrWong99/brainball/internal/imagecache"
	"github.com/MrWong99/brainball/pkg/pixel"
)

// Mode is the display mode reported to the renderer. Renderers shared with
// other interactions switch on it; everything built here is [ModeVoice].
type Mode string

// ModeVoice covers both the recognised-word view and the mic-level meter.
const ModeVoice Mode = "voice"

// Status is the small activity indicator drawn next to the content.
type Status int

const (
	StatusNone Status = iota
	StatusListening
	StatusThinking
)

// String returns "", "listening" or "thinking".
func (s Status) String() string {
	switch s {
	case StatusListening:
		return "listening"
	case StatusThinking:
		return "thinking"
	default:
		return ""
	}
}

// MarshalText renders the status name in JSON.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Content is one frame's worth of display state. Treat it as immutable; the
// image grid is shared with the cache.
type Content struct {
	Mode            Mode              `json:"mode"`
	TextColor       pixel.RGB         `json:"text_color"`
	BackgroundColor pixel.RGB         `json:"background_color"`
	Text            string            `json:"text,omitempty"`
	Image           *imagecache.Entry `json:"image,omitempty"`
	Status          Status            `json:"status"`
	Level           *float64          `json:"level,omitempty"`
}

// Level returns a pointer to v clamped to [0, 1].
func Level(v float64) *float64 {
	switch {
	case v != v || v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	return &v
}

// Equal reports whether a and b would render identically.
func (a Content) Equal(b Content) bool {
	if a.Mode != b.Mode || a.TextColor != b.TextColor || a.BackgroundColor != b.BackgroundColor ||
		a.Text != b.Text || a.Status != b.Status {
		return false
	}
	if (a.Image == nil) != (b.Image == nil) {
		return false
	}
	if a.Image != nil && (a.Image.Key != b.Image.Key || !a.Image.LastRefresh.Equal(b.Image.LastRefresh)) {
		return false
	}
	if (a.Level == nil) != (b.Level == nil) {
		return false
	}
	return a.Level == nil || *a.Level == *b.Level
}

// LogValue implements slog.LogValuer.
func (c Content) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("mode", string(c.Mode)),
		slog.String("text", c.Text),
		slog.String("status", c.Status.String()),
	}
	if c.Image != nil {
		attrs = append(attrs, slog.String("image", c.Image.Key))
	}
	if c.Level != nil {
		attrs = append(attrs, slog.Float64("level", *c.Level))
	}
	return slog.GroupValue(attrs...)
}
