// Package embedmatch implements resolve.LocalMatcher with text embeddings.
//
// Each registered animal is represented by the embedding of its first label.
// A word is embedded with the same model and scored against every reference
// by cosine similarity; the best-scoring animal is returned and the resolver
// applies its threshold. Equal scores go to the animal registered first.
//
// Reference vectors are computed lazily on the first Match and cached in a
// refstore.Store keyed by the provider's model id.
package embedmatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/brainball/internal/refstore"
	"github.com/MrWong99/brainball/internal/resolve"
	"github.com/MrWong99/brainball/pkg/provider/embeddings"
)

// ErrNoReferences is returned by [New] when no animal has a usable label.
var ErrNoReferences = errors.New("embedmatch: no reference labels registered")

type reference struct {
	key  string
	text string
	vec  []float32
}

// Matcher scores words against reference embeddings.
type Matcher struct {
	provider embeddings.Provider
	store    refstore.Store

	mu    sync.Mutex
	refs  []reference
	ready bool
}

// New returns a Matcher for animals. A nil store caches in memory only.
func New(p embeddings.Provider, animals []resolve.Animal, store refstore.Store) (*Matcher, error) {
	if p == nil {
		return nil, fmt.Errorf("embedmatch: provider must not be nil")
	}
	if store == nil {
		store = refstore.NewMemory()
	}
	m := &Matcher{provider: p, store: store}
	for _, a := range animals {
		if a.Key == "" || len(a.Labels) == 0 {
			continue
		}
		text := strings.ToLower(strings.TrimSpace(a.Labels[0]))
		if text == "" {
			continue
		}
		m.refs = append(m.refs, reference{key: a.Key, text: text})
	}
	if len(m.refs) == 0 {
		return nil, ErrNoReferences
	}
	return m, nil
}

// Warm computes all reference vectors now instead of on the first Match.
func (m *Matcher) Warm(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureRefsLocked(ctx)
}

// Match implements resolve.LocalMatcher. The similarity is the raw cosine in
// [-1, 1].
func (m *Matcher) Match(ctx context.Context, word string) (string, float64, error) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return "", 0, nil
	}

	m.mu.Lock()
	err := m.ensureRefsLocked(ctx)
	refs := m.refs
	m.mu.Unlock()
	if err != nil {
		return "", 0, err
	}

	vec, err := m.provider.Embed(ctx, word)
	if err != nil {
		return "", 0, fmt.Errorf("embedmatch: embed %q: %w", word, err)
	}

	bestKey, best := "", -1.0
	for _, r := range refs {
		if sim := embeddings.Cosine(vec, r.vec); sim > best {
			bestKey, best = r.key, sim
		}
	}
	return bestKey, best, nil
}

// ensureRefsLocked fills in missing reference vectors from the store or the
// provider. A failure leaves the matcher unready so the next call retries.
// Must be called with m.mu held.
func (m *Matcher) ensureRefsLocked(ctx context.Context) error {
	if m.ready {
		return nil
	}
	model := m.provider.ModelID()

	var missing []int
	for i := range m.refs {
		if m.refs[i].vec != nil {
			continue
		}
		vec, ok, err := m.store.Lookup(ctx, model, m.refs[i].text)
		if err != nil {
			slog.Warn("embedmatch: reference lookup failed, re-embedding", "text", m.refs[i].text, "err", err)
		}
		if ok && len(vec) > 0 {
			m.refs[i].vec = vec
			continue
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = m.refs[i].text
		}
		vecs, err := m.provider.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedmatch: embed references: %w", err)
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("embedmatch: embed references: got %d vectors for %d texts", len(vecs), len(texts))
		}
		for j, i := range missing {
			m.refs[i].vec = vecs[j]
			if err := m.store.Put(ctx, model, texts[j], vecs[j]); err != nil {
				slog.Warn("embedmatch: reference store failed", "text", texts[j], "err", err)
			}
		}
		slog.Info("embedmatch: reference embeddings computed", "model", model, "count", len(missing))
	}

	m.ready = true
	return nil
}

var _ resolve.LocalMatcher = (*Matcher)(nil)
