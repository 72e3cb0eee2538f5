// Package mock provides in-memory implementations of [audio.Source] and
// [audio.ContinuousSource] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts, and they expose exported fields that the
// test can set to control return values.
//
// Typical usage:
//
//	src := &mock.ContinuousSource{
//	    Source: mock.Source{Available: true},
//	    Chunks: [][]byte{chunkA, chunkB},
//	}
//	loop := recognition.New(src, factory)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/brainball/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock one-shot [audio.Source].
type Source struct {
	mu sync.Mutex

	// Available is returned by IsAvailable.
	Available bool

	// InitializeErr is returned by Initialize.
	InitializeErr error

	// RecordResult is returned by RecordAudio. When nil, a silent buffer of
	// the requested duration at 16 kHz is returned.
	RecordResult []byte

	// RecordErr, if non-nil, is returned by RecordAudio.
	RecordErr error

	// CallCountInitialize records how many times Initialize was called.
	CallCountInitialize int

	// RecordCalls records the duration passed to every RecordAudio call.
	RecordCalls []time.Duration
}

// Initialize records the call and returns InitializeErr.
func (s *Source) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountInitialize++
	return s.InitializeErr
}

// IsAvailable returns Available.
func (s *Source) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Available
}

// SetAvailable changes the value returned by IsAvailable.
func (s *Source) SetAvailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Available = v
}

// RecordAudio records the call and returns RecordResult, RecordErr.
func (s *Source) RecordAudio(_ context.Context, d time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RecordCalls = append(s.RecordCalls, d)
	if s.RecordErr != nil {
		return nil, s.RecordErr
	}
	if s.RecordResult != nil {
		return s.RecordResult, nil
	}
	samples := int(d.Seconds() * audio.DefaultSampleRate)
	return make([]byte, samples*2), nil
}

var _ audio.Source = (*Source)(nil)

// ─── ContinuousSource ─────────────────────────────────────────────────────────

// ContinuousSource is a mock [audio.ContinuousSource]. Queued Chunks are
// handed out in order by ReadChunk; once exhausted, ReadChunk returns
// ReadErr if set, or else a silent chunk of the requested size.
type ContinuousSource struct {
	Source

	// StartErr is returned by StartContinuousStream.
	StartErr error

	// Chunks are returned one per ReadChunk call.
	Chunks [][]byte

	// ReadErr is returned once Chunks is exhausted.
	ReadErr error

	// ReadErrAt maps a 1-based ReadChunk call number to an error returned by
	// that call alone. The queue is not advanced by a failing call.
	ReadErrAt map[int]error

	// ReadDelay, if positive, is slept before each ReadChunk returns. It
	// models the blocking read of a real device.
	ReadDelay time.Duration

	// CallCountStart records how many times StartContinuousStream was called.
	CallCountStart int

	// CallCountStop records how many times StopContinuousStream was called.
	CallCountStop int

	// ReadFrames records the frame count passed to every ReadChunk call.
	ReadFrames []int

	streaming bool
}

// StartContinuousStream records the call and returns StartErr.
func (s *ContinuousSource) StartContinuousStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartErr != nil {
		return s.StartErr
	}
	s.streaming = true
	return nil
}

// ReadChunk records the call and returns the next queued chunk.
func (s *ContinuousSource) ReadChunk(frames int) ([]byte, error) {
	s.mu.Lock()
	delay := s.ReadDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReadFrames = append(s.ReadFrames, frames)
	if err := s.ReadErrAt[len(s.ReadFrames)]; err != nil {
		return nil, err
	}
	if len(s.Chunks) > 0 {
		c := s.Chunks[0]
		s.Chunks = s.Chunks[1:]
		return c, nil
	}
	if s.ReadErr != nil {
		return nil, s.ReadErr
	}
	return make([]byte, frames*2), nil
}

// StopContinuousStream records the call.
func (s *ContinuousSource) StopContinuousStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	s.streaming = false
	return nil
}

// Streaming reports whether a stream is currently open.
func (s *ContinuousSource) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// StopCount returns CallCountStop under the lock.
func (s *ContinuousSource) StopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountStop
}

// StartCount returns CallCountStart under the lock.
func (s *ContinuousSource) StartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountStart
}

// Enqueue appends chunks to the read queue.
func (s *ContinuousSource) Enqueue(chunks ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Chunks = append(s.Chunks, chunks...)
}

// ReadCount returns the number of ReadChunk calls so far.
func (s *ContinuousSource) ReadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ReadFrames)
}

var _ audio.ContinuousSource = (*ContinuousSource)(nil)
