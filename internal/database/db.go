// Package database implements the persistence layer on PostgreSQL via pgx.
// The pool is owned by a Store handle that is passed explicitly to whoever
// needs it; there is no package-level connection state.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"twindm/internal/pipeline"
)

// Store wraps the pgx pool and implements the pipeline's persistence
// contract plus the read paths used by the HTTP handlers.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens the pool, pings it, and ensures the schema exists.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// WithTx runs fn inside one all-or-nothing transaction. The connection is
// checked out for the duration of fn and released on commit, rollback, and
// error alike.
func (s *Store) WithTx(ctx context.Context, fn func(tx pipeline.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&pgTx{q: tx})
	})
}

// mapError converts driver errors to the pipeline's sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pipeline.ErrConflict
	}
	return err
}
