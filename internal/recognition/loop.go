// Package recognition runs the background speech-recognition worker that keeps
// track of the most recently heard word.
//
// A [Loop] owns one worker goroutine at a time. The worker pulls fixed-size
// PCM chunks from an [audio.Source], feeds them to an [asr.Recognizer] and
// publishes the first token of every new hypothesis. Readers never block on
// the worker: [Loop.CurrentWord] and [Loop.Word] return a mutex-guarded
// snapshot.
//
// Lifecycle:
//
//	Stopped → Starting → Running → Stopping → Stopped
//
// Start and Stop are idempotent. Only Start reports errors; everything that
// goes wrong inside the worker is logged and retried after a short pause.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/brainball/internal/observe"
	"github.com/MrWong99/brainball/pkg/audio"
	"github.com/MrWong99/brainball/pkg/provider/asr"
)

const (
	// DefaultChunkFrames is 0.25s of audio at 16 kHz.
	DefaultChunkFrames = 4000

	// DefaultPartialMinLength is the shortest partial hypothesis that is
	// published. Finals are always published.
	DefaultPartialMinLength = 2

	// DefaultStopTimeout bounds how long Stop waits for the worker.
	DefaultStopTimeout = 2 * time.Second

	// DefaultErrorPause is slept after a failed chunk.
	DefaultErrorPause = 100 * time.Millisecond
)

// ErrNotAvailable is returned by Start when the audio source cannot be used.
// It is always accompanied by [audio.ErrHardware] in the error chain.
var ErrNotAvailable = errors.New("recognition: audio not available")

// State is the lifecycle state of a [Loop].
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Word is the most recently recognised word.
type Word struct {
	Text       string    `json:"text"`
	ObservedAt time.Time `json:"observed_at"`
}

// Loop is the recognition worker. Create one with [New].
type Loop struct {
	src     audio.Source
	stream  audio.ContinuousSource // nil when src cannot stream
	factory asr.Factory

	chunkFrames      int
	partialMinLength atomic.Int32
	stopTimeout      time.Duration
	errorPause       time.Duration
	now              func() time.Time
	metrics          *observe.Metrics

	// lifecycle serialises Start, Stop and Close.
	lifecycle sync.Mutex
	state     atomic.Int32
	rec       asr.Recognizer
	cancel    context.CancelFunc
	done      chan struct{}

	mu   sync.Mutex
	word Word
}

// Option configures a [Loop].
type Option func(*Loop)

// WithChunkFrames sets the number of frames read per chunk.
func WithChunkFrames(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.chunkFrames = n
		}
	}
}

// WithPartialMinLength sets the minimum length, in characters, of a partial
// hypothesis before it is published.
func WithPartialMinLength(n int) Option {
	return func(l *Loop) { l.partialMinLength.Store(int32(max(n, 0))) }
}

// WithStopTimeout bounds the wait for the worker in Stop.
func WithStopTimeout(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.stopTimeout = d
		}
	}
}

// WithErrorPause sets the pause after a failed chunk.
func WithErrorPause(d time.Duration) Option {
	return func(l *Loop) {
		if d >= 0 {
			l.errorPause = d
		}
	}
}

// WithClock overrides the clock used for [Word.ObservedAt].
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithMetrics records published words and chunk errors on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// New creates a stopped Loop. When src implements [audio.ContinuousSource]
// the worker reads from the stream; otherwise it records one chunk-length
// clip per iteration.
func New(src audio.Source, factory asr.Factory, opts ...Option) *Loop {
	l := &Loop{
		src:         src,
		factory:     factory,
		chunkFrames: DefaultChunkFrames,
		stopTimeout: DefaultStopTimeout,
		errorPause:  DefaultErrorPause,
		now:         time.Now,
	}
	l.partialMinLength.Store(DefaultPartialMinLength)
	if cs, ok := audio.AsContinuous(src); ok {
		l.stream = cs
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// CurrentWord returns the last published word, or "" if none.
func (l *Loop) CurrentWord() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.word.Text
}

// Word returns the last published word and whether one exists.
func (l *Loop) Word() (Word, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.word, l.word.Text != ""
}

// SetPartialMinLength changes the partial debounce length at runtime.
func (l *Loop) SetPartialMinLength(n int) {
	l.partialMinLength.Store(int32(max(n, 0)))
}

// Start launches the worker. Calling Start while the loop is not stopped logs
// a warning and returns nil.
func (l *Loop) Start(ctx context.Context) error {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	if st := l.State(); st != StateStopped {
		slog.Warn("recognition: start ignored", "state", st.String())
		return nil
	}
	if l.done != nil {
		select {
		case <-l.done:
		default:
			return fmt.Errorf("recognition: start: previous worker still running")
		}
	}

	l.state.Store(int32(StateStarting))
	if err := l.prepare(); err != nil {
		l.state.Store(int32(StateStopped))
		return err
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	l.state.Store(int32(StateRunning))
	go l.run(workerCtx, done)

	slog.Info("recognition: started",
		"chunk_frames", l.chunkFrames,
		"continuous", l.stream != nil,
	)
	return nil
}

// prepare checks the device, builds the recogniser on first use and opens the
// stream. The stream is opened last so a model failure leaves no device open.
func (l *Loop) prepare() error {
	if !l.src.IsAvailable() {
		return fmt.Errorf("recognition: start: %w: %w", ErrNotAvailable, audio.ErrHardware)
	}
	if err := l.src.Initialize(); err != nil {
		return fmt.Errorf("recognition: start: initialize: %w: %w", ErrNotAvailable, hardware(err))
	}

	if l.rec == nil {
		rec, err := l.factory()
		if err != nil {
			if !errors.Is(err, asr.ErrModelUnavailable) {
				err = fmt.Errorf("%w: %w", asr.ErrModelUnavailable, err)
			}
			return fmt.Errorf("recognition: start: recognizer: %w", err)
		}
		l.rec = rec
	}

	if l.stream != nil {
		if err := l.stream.StartContinuousStream(); err != nil {
			return fmt.Errorf("recognition: start: stream: %w: %w", ErrNotAvailable, hardware(err))
		}
	}
	return nil
}

func hardware(err error) error {
	if errors.Is(err, audio.ErrHardware) {
		return err
	}
	return fmt.Errorf("%w: %w", audio.ErrHardware, err)
}

// Stop cancels the worker, waits for it up to the stop timeout and closes the
// stream. The loop is Stopped when Stop returns, even if the worker is still
// blocked in a read.
func (l *Loop) Stop() {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	l.stopLocked()
}

func (l *Loop) stopLocked() {
	if l.State() != StateRunning {
		return
	}
	l.state.Store(int32(StateStopping))
	l.cancel()

	timer := time.NewTimer(l.stopTimeout)
	select {
	case <-l.done:
		timer.Stop()
	case <-timer.C:
		slog.Warn("recognition: worker did not stop in time", "timeout", l.stopTimeout)
	}

	if l.stream != nil {
		if err := l.stream.StopContinuousStream(); err != nil {
			slog.Warn("recognition: stop stream", "err", err)
		}
	}
	l.state.Store(int32(StateStopped))
	slog.Info("recognition: stopped")
}

// Close stops the loop and releases the recogniser. The loop can be started
// again afterwards; a new recogniser is built on the next Start.
func (l *Loop) Close() error {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	l.stopLocked()

	if l.rec == nil {
		return nil
	}
	if l.done != nil {
		select {
		case <-l.done:
		default:
			return fmt.Errorf("recognition: close: worker still running")
		}
	}
	err := l.rec.Close()
	l.rec = nil
	if err != nil {
		return fmt.Errorf("recognition: close recognizer: %w", err)
	}
	return nil
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for ctx.Err() == nil {
		res, err := l.step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("recognition: chunk failed", "err", err)
			if l.metrics != nil {
				l.metrics.RecordRecognitionError(ctx)
			}
			if !sleep(ctx, l.errorPause) {
				return
			}
			continue
		}
		l.handle(ctx, res)
	}
}

func (l *Loop) step(ctx context.Context) (asr.Result, error) {
	var (
		pcm []byte
		err error
	)
	if l.stream != nil {
		pcm, err = l.stream.ReadChunk(l.chunkFrames)
	} else {
		d := time.Duration(l.chunkFrames) * time.Second / audio.DefaultSampleRate
		pcm, err = l.src.RecordAudio(ctx, d)
	}
	if err != nil {
		return asr.Result{}, fmt.Errorf("read chunk: %w", err)
	}
	if ctx.Err() != nil {
		return asr.Result{}, ctx.Err()
	}
	res, err := l.rec.AcceptChunk(pcm)
	if err != nil {
		return asr.Result{}, fmt.Errorf("accept chunk: %w", err)
	}
	return res, nil
}

func (l *Loop) handle(ctx context.Context, res asr.Result) {
	word := asr.FirstWord(res.Text)
	if word == "" {
		return
	}
	if !res.IsFinal && utf8.RuneCountInString(word) < int(l.partialMinLength.Load()) {
		return
	}
	if !l.publish(word) {
		return
	}
	if l.metrics != nil {
		l.metrics.RecordWord(ctx, res.IsFinal)
	}
	slog.Debug("recognition: word", "word", word, "final", res.IsFinal)
}

// publish stores word unless it equals the current one.
func (l *Loop) publish(word string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.word.Text == word {
		return false
	}
	l.word = Word{Text: word, ObservedAt: l.now()}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
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
