// Package miclevel measures microphone input intensity without speech
// recognition. A [Meter] keeps a background reader on continuous sources so
// the render loop only ever reads a cached value.
package miclevel

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/brainball/internal/display"
	"github.com/MrWong99/brainball/internal/observe"
	"github.com/MrWong99/brainball/pkg/audio"
	"github.com/MrWong99/brainball/pkg/pixel"
)

const (
	// DefaultChunkFrames is roughly 16ms at 16 kHz.
	DefaultChunkFrames = 256

	// DefaultNormalize maps typical speech to a level of about 0.3 to 0.7.
	DefaultNormalize = 8000.0

	// Caption is the text shown alongside the level bar.
	Caption = "Mic level"

	// DefaultErrorPause is slept after a failed read.
	DefaultErrorPause = 100 * time.Millisecond

	sampleDuration = 50 * time.Millisecond
	stopTimeout    = 500 * time.Millisecond
)

// Meter tracks the current input level in [0, 1].
type Meter struct {
	src    audio.Source
	stream audio.ContinuousSource

	chunkFrames int
	normalize   float64
	errorPause  time.Duration
	metrics     *observe.Metrics

	lifecycle     sync.Mutex
	running       atomic.Bool
	streamStarted bool
	cancel        context.CancelFunc
	done          chan struct{}

	level atomic.Uint64 // math.Float64bits
}

// Option configures a [Meter].
type Option func(*Meter)

// WithChunkFrames sets the frames read per background chunk.
func WithChunkFrames(n int) Option {
	return func(m *Meter) {
		if n > 0 {
			m.chunkFrames = n
		}
	}
}

// WithNormalize sets the RMS value that maps to a level of 1.
func WithNormalize(v float64) Option {
	return func(m *Meter) {
		if v > 0 {
			m.normalize = v
		}
	}
}

// WithErrorPause sets the pause after a failed read.
func WithErrorPause(d time.Duration) Option {
	return func(m *Meter) {
		if d >= 0 {
			m.errorPause = d
		}
	}
}

// WithMetrics publishes every new level to the mic-level gauge.
func WithMetrics(mt *observe.Metrics) Option {
	return func(m *Meter) { m.metrics = mt }
}

// New creates a Meter for src. Whether a background reader is used is decided
// here, from whether src implements [audio.ContinuousSource].
func New(src audio.Source, opts ...Option) *Meter {
	m := &Meter{
		src:         src,
		chunkFrames: DefaultChunkFrames,
		normalize:   DefaultNormalize,
		errorPause:  DefaultErrorPause,
	}
	if cs, ok := audio.AsContinuous(src); ok {
		m.stream = cs
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Continuous reports whether the meter uses a background reader.
func (m *Meter) Continuous() bool { return m.stream != nil }

// Running reports whether the background reader is active.
func (m *Meter) Running() bool { return m.running.Load() }

// CurrentLevel returns the last measured level.
func (m *Meter) CurrentLevel() float64 {
	return math.Float64frombits(m.level.Load())
}

func (m *Meter) setLevel(v float64) {
	m.level.Store(math.Float64bits(v))
	if m.metrics != nil {
		m.metrics.SetMicLevel(v)
	}
}

// EnsureRunning starts the stream and the background reader if they are not
// already running. It does nothing for one-shot sources.
func (m *Meter) EnsureRunning() error {
	if m.stream == nil || m.running.Load() {
		return nil
	}
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.running.Load() {
		return nil
	}

	if !m.streamStarted {
		if err := m.stream.StartContinuousStream(); err != nil {
			return fmt.Errorf("miclevel: start stream: %w", err)
		}
		m.streamStarted = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.running.Store(true)
	go m.run(ctx, done)
	return nil
}

func (m *Meter) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer m.running.Store(false)
	for ctx.Err() == nil {
		pcm, err := m.stream.ReadChunk(m.chunkFrames)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("miclevel: read failed", "err", err)
			if !pause(ctx, m.errorPause) {
				return
			}
			continue
		}
		m.setLevel(audio.Level(pcm, m.normalize))
	}
}

// pause sleeps for d and reports false if ctx ended first.
func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Sample records a short clip and returns its level. It is used for
// one-shot sources; on continuous sources it returns [Meter.CurrentLevel]
// after making sure the reader runs. Read errors yield 0.
func (m *Meter) Sample(ctx context.Context) float64 {
	if m.stream != nil {
		if err := m.EnsureRunning(); err != nil {
			slog.Debug("miclevel: ensure running", "err", err)
		}
		return m.CurrentLevel()
	}
	pcm, err := m.src.RecordAudio(ctx, sampleDuration)
	if err != nil {
		slog.Debug("miclevel: sample failed", "err", err)
		m.setLevel(0)
		return 0
	}
	v := audio.Level(pcm, m.normalize)
	m.setLevel(v)
	return v
}

// Content returns the display content for the current level.
func (m *Meter) Content(ctx context.Context) display.Content {
	return display.Content{
		Mode:            display.ModeVoice,
		TextColor:       pixel.White,
		BackgroundColor: pixel.Dark,
		Text:            Caption,
		Level:           display.Level(m.Sample(ctx)),
	}
}

// Stop ends the background reader, waiting up to half a second, and closes
// the stream. It is safe to call at any time and more than once.
func (m *Meter) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.cancel != nil {
		m.cancel()
		t := time.NewTimer(stopTimeout)
		select {
		case <-m.done:
			t.Stop()
		case <-t.C:
			slog.Warn("miclevel: reader did not stop in time", "timeout", stopTimeout)
		}
		m.cancel = nil
	}
	if m.streamStarted {
		if err := m.stream.StopContinuousStream(); err != nil {
			slog.Debug("miclevel: stop stream", "err", err)
		}
		m.streamStarted = false
	}
}
