// Package resolve maps a recognised word to an animal key through an ordered
// chain of tiers:
//
//  1. a remote resolver (HTTP backend or LLM), when configured;
//  2. a local similarity matcher (embeddings or phonetic), when configured;
//  3. a static word table;
//  4. no match.
//
// The first tier that produces a usable answer wins. A remote resolver that
// cannot be reached short-circuits the chain with a random animal so that the
// display keeps showing something lively while the backend is down.
//
// Resolution never panics and never returns an error: every tier outcome is
// folded into a [Result].
package resolve

import (
	"context"
	"errors"
)

// Remote tier failure classes. Remote resolvers wrap one of these; anything
// else is treated as [ErrUnavailable].
var (
	// ErrInvalid means the backend rejected the input (e.g. HTTP 400).
	ErrInvalid = errors.New("resolve: invalid input")

	// ErrUnavailable means the backend answered but could not resolve
	// (e.g. HTTP 503, empty answer).
	ErrUnavailable = errors.New("resolve: backend unavailable")

	// ErrUnreachable means the backend could not be contacted at all
	// (network error, timeout, undecodable response).
	ErrUnreachable = errors.New("resolve: backend unreachable")
)

// UnreachableNote is the ErrorNote reported when the remote tier is
// unreachable and a random animal is substituted.
const UnreachableNote = "Backend unavailable"

// Source identifies which tier produced a [Result].
type Source int

const (
	SourceNone Source = iota
	SourceRemote
	SourceLocalEmbedding
	SourceStaticMap
	SourceRandomFallback
)

// String returns the lowercase tier name used in logs and metrics.
func (s Source) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceRemote:
		return "remote"
	case SourceLocalEmbedding:
		return "local_embedding"
	case SourceStaticMap:
		return "static_map"
	case SourceRandomFallback:
		return "random_fallback"
	default:
		return "unknown"
	}
}

// MarshalText renders the source name in JSON status output.
func (s Source) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Result is the outcome of one resolution.
type Result struct {
	// AnimalKey is the resolved key; empty iff Source is SourceNone.
	AnimalKey string `json:"animal_key"`

	// Confidence is in [0, 1].
	Confidence float64 `json:"confidence"`

	Source Source `json:"source"`

	// ErrorNote is a short human-readable note set when a degraded path was
	// taken (currently only for SourceRandomFallback).
	ErrorNote string `json:"error_note,omitempty"`
}

// Found reports whether r carries an animal key.
func (r Result) Found() bool { return r.AnimalKey != "" }

// RemoteResolver asks an external service for the animal matching word.
// Errors must wrap [ErrInvalid], [ErrUnavailable] or [ErrUnreachable].
type RemoteResolver interface {
	Resolve(ctx context.Context, word string) (string, error)
}

// LocalMatcher scores word against known animals on-device. It returns the
// best key and its similarity; an empty key means no candidate. A negative
// similarity never passes the threshold.
type LocalMatcher interface {
	Match(ctx context.Context, word string) (key string, similarity float64, err error)
}

// classify maps an arbitrary remote error onto one of the three classes.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrUnreachable):
		return ErrUnreachable
	case errors.Is(err, ErrInvalid):
		return ErrInvalid
	default:
		return ErrUnavailable
	}
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
