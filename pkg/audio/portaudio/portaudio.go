// Package portaudio provides an [audio.ContinuousSource] backed by the system's
// default PortAudio input device.
//
// The device is captured at the configured rate as mono int16 and resampled
// to [audio.DefaultSampleRate] before it is handed to callers, so recognisers
// always see 16 kHz PCM regardless of what the hardware prefers.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/brainball/pkg/audio"
)

const (
	defaultFramesPerBuffer = 256
	channels               = 1
)

var _ audio.ContinuousSource = (*Source)(nil)

// Source is a PortAudio microphone. It is safe for concurrent use; reads are
// serialised internally.
type Source struct {
	sampleRate      int
	framesPerBuffer int

	mu          sync.Mutex
	initialized bool
	stream      *pa.Stream
	buf         []int16
	pending     audio.SampleFIFO
}

// Option configures a [Source].
type Option func(*Source)

// WithSampleRate sets the device capture rate in Hz. Defaults to 16000.
func WithSampleRate(hz int) Option {
	return func(s *Source) {
		if hz > 0 {
			s.sampleRate = hz
		}
	}
}

// WithFramesPerBuffer sets the PortAudio buffer size. Defaults to 256.
func WithFramesPerBuffer(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.framesPerBuffer = n
		}
	}
}

// New returns an uninitialised Source. Call Initialize (or let the consumer
// do so) before capturing.
func New(opts ...Option) *Source {
	s := &Source{
		sampleRate:      audio.DefaultSampleRate,
		framesPerBuffer: defaultFramesPerBuffer,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Initialize starts the PortAudio library. Repeated calls are no-ops.
func (s *Source) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked()
}

func (s *Source) initLocked() error {
	if s.initialized {
		return nil
	}
	if err := pa.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w: %w", audio.ErrHardware, err)
	}
	s.initialized = true
	return nil
}

// IsAvailable reports whether a default input device exists.
func (s *Source) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.initLocked(); err != nil {
		slog.Warn("portaudio: not available", "err", err)
		return false
	}
	dev, err := pa.DefaultInputDevice()
	if err != nil || dev == nil {
		return false
	}
	return dev.MaxInputChannels > 0
}

// RecordAudio captures d of audio. When a continuous stream is open it reads
// from that stream; otherwise a temporary stream is opened for the duration
// of the call.
func (s *Source) RecordAudio(ctx context.Context, d time.Duration) ([]byte, error) {
	frames := int(d.Seconds() * audio.DefaultSampleRate)
	if frames <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return s.readLocked(ctx, frames)
	}

	if err := s.openLocked(); err != nil {
		return nil, err
	}
	defer s.closeLocked()
	return s.readLocked(ctx, frames)
}

// StartContinuousStream opens and starts the capture stream.
func (s *Source) StartContinuousStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return nil
	}
	return s.openLocked()
}

// ReadChunk reads frames samples at 16 kHz from the open stream.
func (s *Source) ReadChunk(frames int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil, fmt.Errorf("portaudio: read chunk: %w: stream not started", audio.ErrHardware)
	}
	return s.readLocked(context.Background(), frames)
}

// StopContinuousStream stops and closes the capture stream.
func (s *Source) StopContinuousStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

// Terminate closes any open stream and shuts down the PortAudio library.
func (s *Source) Terminate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.closeLocked()
	if s.initialized {
		if e := pa.Terminate(); e != nil {
			err = errors.Join(err, e)
		}
		s.initialized = false
	}
	return err
}

func (s *Source) openLocked() error {
	if err := s.initLocked(); err != nil {
		return err
	}
	s.buf = make([]int16, s.framesPerBuffer)
	stream, err := pa.OpenDefaultStream(channels, 0, float64(s.sampleRate), len(s.buf), s.buf)
	if err != nil {
		return fmt.Errorf("portaudio: open stream: %w: %w", audio.ErrHardware, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("portaudio: start stream: %w: %w", audio.ErrHardware, err)
	}
	s.stream = stream
	slog.Debug("portaudio: stream started", "sample_rate", s.sampleRate, "frames_per_buffer", s.framesPerBuffer)
	return nil
}

func (s *Source) closeLocked() error {
	if s.stream == nil {
		return nil
	}
	stream := s.stream
	s.stream = nil
	s.pending.Reset()
	var errs []error
	if err := stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: stop stream: %w", err))
	}
	if err := stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: close stream: %w", err))
	}
	return errors.Join(errs...)
}

// readLocked reads enough device buffers to produce frames samples at the
// recogniser rate. Samples read past the chunk stay queued for the next call.
func (s *Source) readLocked(ctx context.Context, frames int) ([]byte, error) {
	want := frames * s.sampleRate / audio.DefaultSampleRate
	for s.pending.Len() < want {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.stream.Read(); err != nil && !errors.Is(err, pa.InputOverflowed) {
			return nil, fmt.Errorf("portaudio: read: %w: %w", audio.ErrHardware, err)
		}
		s.pending.Push(s.buf)
	}
	pcm := audio.Int16ToBytes(s.pending.Take(want))
	pcm = audio.ResampleMono16(pcm, s.sampleRate, audio.DefaultSampleRate)
	if len(pcm) > frames*2 {
		pcm = pcm[:frames*2]
	}
	return pcm, nil
}
