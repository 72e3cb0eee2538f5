// Package whisper provides an [asr.Recognizer] backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.
//
// Whisper is a batch model, so the recogniser buffers chunks while it hears
// speech and runs inference once a run of silence closes the utterance (or the
// buffer reaches its maximum length). Every inference yields a final result;
// chunks that do not complete an utterance yield an empty partial.
package whisper

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/brainball/pkg/audio"
	"github.com/MrWong99/brainball/pkg/provider/asr"
)

const (
	// defaultRMSThreshold is the RMS level (raw 16-bit units) below which a
	// chunk counts as silence.
	defaultRMSThreshold        = 300.0
	defaultLanguage            = "en"
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000

	bytesPerMs = audio.DefaultSampleRate * 2 / 1000
)

var _ asr.Recognizer = (*Recognizer)(nil)

// Recognizer implements [asr.Recognizer] over a whisper.cpp model.
type Recognizer struct {
	model               whisperlib.Model
	language            string
	rmsThreshold        float64
	silenceThresholdMs  int
	maxBufferDurationMs int

	// transcribe runs inference over mono float32 samples.
	transcribe func([]float32) (string, error)

	buffer    []byte
	hadSpeech bool
	silenceMs int
}

// Option configures a [Recognizer].
type Option func(*Recognizer)

// WithLanguage sets the language code passed to whisper.cpp. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(r *Recognizer) {
		if lang != "" {
			r.language = lang
		}
	}
}

// WithSilenceThresholdMs sets how much trailing silence ends an utterance.
// Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(r *Recognizer) {
		if ms > 0 {
			r.silenceThresholdMs = ms
		}
	}
}

// WithMaxBufferDurationMs caps the buffered utterance length. Defaults to 10 s.
func WithMaxBufferDurationMs(ms int) Option {
	return func(r *Recognizer) {
		if ms > 0 {
			r.maxBufferDurationMs = ms
		}
	}
}

// WithRMSThreshold sets the silence threshold in raw 16-bit RMS units.
func WithRMSThreshold(v float64) Option {
	return func(r *Recognizer) {
		if v > 0 {
			r.rmsThreshold = v
		}
	}
}

// New loads the ggml model file at modelPath. Errors wrap
// [asr.ErrModelUnavailable].
func New(modelPath string, opts ...Option) (*Recognizer, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("whisper: %w: model path is empty", asr.ErrModelUnavailable)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("whisper: %w: %w", asr.ErrModelUnavailable, err)
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w: %w", modelPath, asr.ErrModelUnavailable, err)
	}
	r := newRecognizer(opts...)
	r.model = model
	r.transcribe = r.infer
	return r, nil
}

func newRecognizer(opts ...Option) *Recognizer {
	r := &Recognizer{
		language:            defaultLanguage,
		rmsThreshold:        defaultRMSThreshold,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// AcceptChunk buffers speech and runs inference when an utterance ends.
func (r *Recognizer) AcceptChunk(pcm []byte) (asr.Result, error) {
	chunkMs := len(pcm) / bytesPerMs

	if audio.RMS16(pcm) < r.rmsThreshold {
		if !r.hadSpeech {
			return asr.Result{}, nil
		}
		r.silenceMs += chunkMs
		r.buffer = append(r.buffer, pcm...)
		if r.silenceMs >= r.silenceThresholdMs {
			return r.flush()
		}
		return asr.Result{}, nil
	}

	r.hadSpeech = true
	r.silenceMs = 0
	r.buffer = append(r.buffer, pcm...)
	if len(r.buffer) >= r.maxBufferDurationMs*bytesPerMs {
		return r.flush()
	}
	return asr.Result{}, nil
}

func (r *Recognizer) flush() (asr.Result, error) {
	pcm := r.buffer
	r.buffer = nil
	r.hadSpeech = false
	r.silenceMs = 0

	text, err := r.transcribe(audio.ToFloat32(pcm))
	if err != nil {
		return asr.Result{}, err
	}
	return asr.Result{Text: text, IsFinal: true}, nil
}

// infer runs whisper.cpp over samples in a fresh context and joins the
// segment texts.
func (r *Recognizer) infer(samples []float32) (string, error) {
	wctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(r.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", r.language, "error", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Close releases the model.
func (r *Recognizer) Close() error {
	if r.model != nil {
		err := r.model.Close()
		r.model = nil
		return err
	}
	return nil
}
