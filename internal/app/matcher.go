package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/brainball/internal/config"
	"github.com/MrWong99/brainball/internal/refstore"
	"github.com/MrWong99/brainball/internal/refstore/postgres"
	"github.com/MrWong99/brainball/internal/resolve"
	"github.com/MrWong99/brainball/internal/resolve/embedmatch"
	"github.com/MrWong99/brainball/internal/resolve/phonetic"
	"github.com/MrWong99/brainball/pkg/provider/embeddings"
)

// ErrEmbeddingsRequired is returned by [NewLocalMatcher] when the embedding
// matcher is selected without an embeddings provider.
var ErrEmbeddingsRequired = errors.New("app: embedding matcher requires an embeddings provider")

// OpenReferenceStore opens the PostgreSQL reference store at dsn. An empty
// dsn yields an in-memory store. The returned close func is never nil.
func OpenReferenceStore(ctx context.Context, dsn string) (refstore.Store, func(), error) {
	if dsn == "" {
		return refstore.NewMemory(), func() {}, nil
	}
	s, err := postgres.New(ctx, dsn)
	if err != nil {
		return nil, func() {}, fmt.Errorf("app: open reference store: %w", err)
	}
	return s, s.Close, nil
}

// NewLocalMatcher builds the on-device matcher selected by
// rc.LocalMatcher over [resolve.DefaultAnimals]. It returns nil when no
// matcher is configured. The embedding matcher warms its reference vectors
// here; a warm-up failure is logged and retried on the first match.
func NewLocalMatcher(ctx context.Context, rc config.ResolverConfig, emb embeddings.Provider, store refstore.Store) (resolve.LocalMatcher, error) {
	switch rc.LocalMatcher {
	case config.LocalMatcherPhonetic:
		return phonetic.New(resolve.DefaultAnimals), nil

	case config.LocalMatcherEmbedding:
		if emb == nil {
			return nil, ErrEmbeddingsRequired
		}
		m, err := embedmatch.New(emb, resolve.DefaultAnimals, store)
		if err != nil {
			return nil, fmt.Errorf("app: embedding matcher: %w", err)
		}
		if err := m.Warm(ctx); err != nil {
			slog.Warn("reference embeddings not ready, retrying on first match",
				"model", emb.ModelID(),
				"err", err,
			)
		} else {
			slog.Info("reference embeddings ready", "model", emb.ModelID())
		}
		return m, nil

	default:
		return nil, nil
	}
}
