// Package refstore caches reference embeddings so that each animal label is
// embedded only once per embedding model.
//
// Vectors are keyed by (model, text). Changing the model id or a label text
// therefore misses the cache and triggers a fresh embedding.
package refstore

import (
	"context"
	"slices"
	"sync"
)

// Store persists reference vectors.
type Store interface {
	// Lookup returns the vector stored for (model, text). ok is false on a
	// miss.
	Lookup(ctx context.Context, model, text string) (vec []float32, ok bool, err error)

	// Put stores vec for (model, text), replacing any previous value.
	Put(ctx context.Context, model, text string, vec []float32) error
}

type key struct{ model, text string }

// Memory is an in-process [Store]. The zero value is ready to use.
type Memory struct {
	mu   sync.RWMutex
	vecs map[key][]float32
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory { return &Memory{} }

// Lookup implements [Store].
func (m *Memory) Lookup(_ context.Context, model, text string) ([]float32, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vecs[key{model, text}]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

// Put implements [Store].
func (m *Memory) Put(_ context.Context, model, text string, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vecs == nil {
		m.vecs = make(map[key][]float32)
	}
	m.vecs[key{model, text}] = slices.Clone(vec)
	return nil
}

// Len returns the number of stored vectors.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vecs)
}

var _ Store = (*Memory)(nil)
