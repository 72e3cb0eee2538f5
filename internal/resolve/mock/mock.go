// Package mock provides test doubles for resolve.RemoteResolver and
// resolve.LocalMatcher.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/brainball/internal/resolve"
)

// RemoteResolver is a mock resolve.RemoteResolver.
type RemoteResolver struct {
	mu sync.Mutex

	// Key is returned on success.
	Key string

	// Err, if non-nil, is returned instead of Key.
	Err error

	// Panic, if non-nil, is raised by Resolve.
	Panic any

	// Calls records every word passed to Resolve.
	Calls []string
}

// Resolve records the call and returns Key, Err.
func (r *RemoteResolver) Resolve(_ context.Context, word string) (string, error) {
	r.mu.Lock()
	r.Calls = append(r.Calls, word)
	key, err, p := r.Key, r.Err, r.Panic
	r.mu.Unlock()
	if p != nil {
		panic(p)
	}
	if err != nil {
		return "", err
	}
	return key, nil
}

// CallCount returns the number of Resolve calls.
func (r *RemoteResolver) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

// LocalMatcher is a mock resolve.LocalMatcher.
type LocalMatcher struct {
	mu sync.Mutex

	// Key and Similarity are returned by Match.
	Key        string
	Similarity float64

	// Err, if non-nil, is returned by Match.
	Err error

	// Panic, if non-nil, is raised by Match.
	Panic any

	// Calls records every word passed to Match.
	Calls []string
}

// Match records the call and returns Key, Similarity, Err.
func (m *LocalMatcher) Match(_ context.Context, word string) (string, float64, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, word)
	key, sim, err, p := m.Key, m.Similarity, m.Err, m.Panic
	m.mu.Unlock()
	if p != nil {
		panic(p)
	}
	if err != nil {
		return "", 0, err
	}
	return key, sim, nil
}

// CallCount returns the number of Match calls.
func (m *LocalMatcher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

var (
	_ resolve.RemoteResolver = (*RemoteResolver)(nil)
	_ resolve.LocalMatcher   = (*LocalMatcher)(nil)
)
