// Package asr defines the Recognizer interface for offline, chunk-fed speech
// recognisers.
//
// A Recognizer consumes fixed-size chunks of 16 kHz mono 16-bit PCM and, for
// each chunk, reports either a partial hypothesis (the utterance is still in
// progress) or a final result (the recogniser decided the utterance ended).
// Recognisers hold native model state and are therefore used by exactly one
// goroutine at a time; they are not required to be safe for concurrent use.
package asr

import (
	"errors"
	"strings"
)

// ErrModelUnavailable is wrapped by constructors when the model artifact is
// missing or cannot be loaded.
var ErrModelUnavailable = errors.New("asr: model unavailable")

// Result is the recogniser's answer for a single chunk.
type Result struct {
	// Text is the recognised text. Empty when nothing was heard.
	Text string

	// IsFinal is true when Text is a committed utterance rather than an
	// in-progress hypothesis.
	IsFinal bool
}

// Recognizer turns PCM chunks into text.
type Recognizer interface {
	// AcceptChunk feeds one chunk of PCM. The returned Result holds either the
	// final text of a just-completed utterance or the current partial.
	AcceptChunk(pcm []byte) (Result, error)

	// Close releases native resources.
	Close() error
}

// Factory constructs a Recognizer. It is called lazily on first use so that
// loading a large model does not delay process start.
type Factory func() (Recognizer, error)

// FirstWord returns the first whitespace-delimited token of text, lowercased.
// It returns "" for blank input.
func FirstWord(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}
