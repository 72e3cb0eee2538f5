// Package postgres is a PostgreSQL + pgvector implementation of
// refstore.Store. Reference vectors survive restarts, so a fleet of devices
// sharing one database embeds each label only once per model.
//
// The pgvector extension must be available; [Migrate] installs it with
// CREATE EXTENSION IF NOT EXISTS.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/brainball/internal/refstore"
)

const ddl = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS reference_embeddings (
    model       TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    embedding   vector       NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (model, text)
);
`

// Migrate creates the reference_embeddings table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres refstore: migrate: %w", err)
	}
	return nil
}

// Store is a pgvector-backed refstore.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, registers pgvector types on every connection and runs
// [Migrate].
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres refstore: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres refstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres refstore: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Lookup implements refstore.Store.
func (s *Store) Lookup(ctx context.Context, model, text string) ([]float32, bool, error) {
	const q = `SELECT embedding FROM reference_embeddings WHERE model = $1 AND text = $2`
	var vec pgvector.Vector
	err := s.pool.QueryRow(ctx, q, model, text).Scan(&vec)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("postgres refstore: lookup %q/%q: %w", model, text, err)
	}
	return vec.Slice(), true, nil
}

// Put implements refstore.Store.
func (s *Store) Put(ctx context.Context, model, text string, vec []float32) error {
	const q = `
INSERT INTO reference_embeddings (model, text, embedding)
VALUES ($1, $2, $3)
ON CONFLICT (model, text) DO UPDATE SET embedding = EXCLUDED.embedding, created_at = now()`
	if _, err := s.pool.Exec(ctx, q, model, text, pgvector.NewVector(vec)); err != nil {
		return fmt.Errorf("postgres refstore: put %q/%q: %w", model, text, err)
	}
	return nil
}

// Ping reports whether the database is reachable. It backs the readiness
// check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

var _ refstore.Store = (*Store)(nil)
