// Package store persists flows, runs, incidents, and metrics in
// PostgreSQL, and provides the result sink that records completed runs
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps the connection pool. All queries go through it
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var (
	ErrNotFound     = errors.New("not found")
	ErrIncidentOpen = errors.New("flow already has an open incident")
)

// New connects to Postgres and verifies the connection
func New(
	ctx context.Context, databaseURL string, logger *slog.Logger,
) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close releases the pool
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database reachability, for the health endpoint
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
