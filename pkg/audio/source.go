// Package audio defines the microphone abstraction consumed by the recognition
// loop and the mic-level meter, plus small helpers for 16-bit PCM.
//
// Two interfaces are exposed:
//
//   - [Source]: one-shot capture of a fixed duration.
//   - [ContinuousSource]: an optional capability for sources that can keep a
//     stream open and hand out fixed-size chunks on demand.
//
// Consumers detect the continuous capability once, at construction time, with
// a type assertion rather than probing on every call.
//
// All PCM in this package is mono, 16-bit signed, little-endian.
package audio

import (
	"context"
	"errors"
	"time"
)

// DefaultSampleRate is the capture rate expected by the speech recognisers.
const DefaultSampleRate = 16000

// ErrHardware is wrapped by every error that originates from the capture
// device (device missing, stream failure, read failure).
var ErrHardware = errors.New("audio: hardware error")

// Source is a microphone that can record fixed-length clips.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Initialize prepares the device. It is safe to call more than once.
	Initialize() error

	// IsAvailable reports whether a capture device is present and usable.
	IsAvailable() bool

	// RecordAudio captures d worth of PCM and returns it. Errors wrap
	// [ErrHardware].
	RecordAudio(ctx context.Context, d time.Duration) ([]byte, error)
}

// ContinuousSource is a [Source] that can also stream.
type ContinuousSource interface {
	Source

	// StartContinuousStream opens the capture stream. Calling it while a
	// stream is already open is a no-op.
	StartContinuousStream() error

	// ReadChunk blocks until frames samples are available and returns them
	// as 2*frames bytes of PCM. Errors wrap [ErrHardware].
	ReadChunk(frames int) ([]byte, error)

	// StopContinuousStream closes the capture stream. It is idempotent.
	StopContinuousStream() error
}

// AsContinuous returns src as a [ContinuousSource] if it implements the
// capability.
func AsContinuous(src Source) (ContinuousSource, bool) {
	cs, ok := src.(ContinuousSource)
	return cs, ok
}
