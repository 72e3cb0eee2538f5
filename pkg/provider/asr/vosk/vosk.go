// Package vosk provides an [asr.Recognizer] backed by the Vosk offline speech
// recognition toolkit (via its cgo bindings).
//
// The libvosk shared library must be available at link and run time.
package vosk

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	voskapi "github.com/alphacep/vosk-api/go"

	"github.com/MrWong99/brainball/pkg/audio"
	"github.com/MrWong99/brainball/pkg/provider/asr"
)

var _ asr.Recognizer = (*Recognizer)(nil)

var silenceOnce sync.Once

// Recognizer wraps a Vosk model and recogniser pair.
type Recognizer struct {
	model *voskapi.VoskModel
	rec   *voskapi.VoskRecognizer
}

// Option configures a [Recognizer].
type Option func(*options)

type options struct {
	sampleRate float64
	quiet      bool
}

// WithSampleRate overrides the PCM sample rate. Defaults to 16000.
func WithSampleRate(hz int) Option {
	return func(o *options) {
		if hz > 0 {
			o.sampleRate = float64(hz)
		}
	}
}

// WithVerbose keeps Vosk's own stderr logging enabled.
func WithVerbose() Option {
	return func(o *options) { o.quiet = false }
}

// New loads the model directory at modelPath. It returns an error wrapping
// [asr.ErrModelUnavailable] if the directory is missing or cannot be loaded.
func New(modelPath string, opts ...Option) (*Recognizer, error) {
	o := &options{sampleRate: audio.DefaultSampleRate, quiet: true}
	for _, opt := range opts {
		opt(o)
	}
	if o.quiet {
		silenceOnce.Do(func() { voskapi.SetLogLevel(-1) })
	}

	if modelPath == "" {
		return nil, fmt.Errorf("vosk: %w: model path is empty", asr.ErrModelUnavailable)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("vosk: %w: %w", asr.ErrModelUnavailable, err)
	}

	model, err := voskapi.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("vosk: load model %q: %w: %w", modelPath, asr.ErrModelUnavailable, err)
	}
	rec, err := voskapi.NewRecognizer(model, o.sampleRate)
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("vosk: create recognizer: %w: %w", asr.ErrModelUnavailable, err)
	}
	return &Recognizer{model: model, rec: rec}, nil
}

// AcceptChunk feeds pcm to Vosk and returns the final or partial result.
func (r *Recognizer) AcceptChunk(pcm []byte) (asr.Result, error) {
	if r.rec == nil {
		return asr.Result{}, fmt.Errorf("vosk: recognizer is closed")
	}
	final, err := acceptStatus(r.rec.AcceptWaveform(pcm))
	if err != nil {
		return asr.Result{}, err
	}
	if final {
		return parseResult(r.rec.Result(), true)
	}
	return parseResult(r.rec.PartialResult(), false)
}

// acceptStatus interprets the return code of AcceptWaveform: 1 ends an
// utterance, 0 continues it, and -1 means the decoder raised an exception.
func acceptStatus(code int) (final bool, err error) {
	switch code {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("vosk: accept waveform failed (code %d)", code)
	}
}

// Close frees the recogniser and the model.
func (r *Recognizer) Close() error {
	if r.rec != nil {
		r.rec.Free()
		r.rec = nil
	}
	if r.model != nil {
		r.model.Free()
		r.model = nil
	}
	return nil
}

// voskResult covers both the final ({"text": ...}) and partial
// ({"partial": ...}) JSON shapes emitted by Vosk.
type voskResult struct {
	Text    string `json:"text"`
	Partial string `json:"partial"`
}

func parseResult(raw string, final bool) (asr.Result, error) {
	var v voskResult
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return asr.Result{}, fmt.Errorf("vosk: decode result: %w", err)
	}
	if final {
		return asr.Result{Text: v.Text, IsFinal: true}, nil
	}
	return asr.Result{Text: v.Partial}, nil
}
