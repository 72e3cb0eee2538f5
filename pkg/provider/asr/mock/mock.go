// Package mock provides a test double for the asr.Recognizer interface.
//
// Results are scripted: each AcceptChunk call pops the next entry from
// Results. Once the script is exhausted, AcceptChunk returns an empty partial
// (or Err when set).
//
// Example:
//
//	rec := &mock.Recognizer{Results: []mock.Step{
//	    {Result: asr.Result{Text: "co"}},
//	    {Result: asr.Result{Text: "cow moo", IsFinal: true}},
//	}}
package mock

import (
	"sync"

	"github.com/MrWong99/brainball/pkg/provider/asr"
)

// Step is one scripted AcceptChunk outcome.
type Step struct {
	Result asr.Result
	Err    error
}

// Recognizer is a mock implementation of asr.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// Results is consumed in order by AcceptChunk.
	Results []Step

	// Err, if non-nil, is returned once Results is exhausted.
	Err error

	// CloseErr is returned by Close.
	CloseErr error

	// Chunks records a copy of every chunk passed to AcceptChunk.
	Chunks [][]byte

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// AcceptChunk records the chunk and returns the next scripted step.
func (r *Recognizer) AcceptChunk(pcm []byte) (asr.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	r.Chunks = append(r.Chunks, cp)
	if len(r.Results) > 0 {
		s := r.Results[0]
		r.Results = r.Results[1:]
		return s.Result, s.Err
	}
	return asr.Result{}, r.Err
}

// Close records the call and returns CloseErr.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CloseCallCount++
	return r.CloseErr
}

// ChunkCount returns the number of chunks received so far.
func (r *Recognizer) ChunkCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Chunks)
}

// Remaining returns the number of scripted steps not yet consumed.
func (r *Recognizer) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Results)
}

// Factory returns an asr.Factory that always yields r and counts calls in
// *calls when calls is non-nil.
func Factory(r *Recognizer, calls *int) asr.Factory {
	var mu sync.Mutex
	return func() (asr.Recognizer, error) {
		mu.Lock()
		defer mu.Unlock()
		if calls != nil {
			*calls++
		}
		return r, nil
	}
}

var _ asr.Recognizer = (*Recognizer)(nil)
