// Package store implements the Postgres persistence layer: orders, payments,
// and the processed-event ledger that makes webhook application exactly-once.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-payments/internal/obs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a pgx connection pool and exposes the repositories the HTTP and
// webhook layers depend on.
type Store struct {
	Pool *pgxpool.Pool
}

// Connect opens a traced pgx pool against the given database URL.
func Connect(ctx context.Context, databaseURL string, logger zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse database url: %w", err)
	}
	cfg.ConnConfig.Tracer = &obs.PGXTracer{}
	cfg.ConnConfig.RuntimeParams["application_name"] = "backend-payments"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	logger.Info().Msg("connected to postgres")
	return &Store{Pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s != nil && s.Pool != nil {
		s.Pool.Close()
	}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.Pool == nil {
		return errors.New("store: pool not configured")
	}
	return s.Pool.Ping(ctx)
}

// Migrate applies the embedded schema migrations. The migrate pgx/v5 driver
// registers under the pgx5 scheme, so plain postgres URLs are rewritten.
func Migrate(databaseURL string, logger zerolog.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: load migrations: %w", err)
	}

	url := databaseURL
	switch {
	case strings.HasPrefix(url, "postgres://"):
		url = "pgx5://" + strings.TrimPrefix(url, "postgres://")
	case strings.HasPrefix(url, "postgresql://"):
		url = "pgx5://" + strings.TrimPrefix(url, "postgresql://")
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("store: init migrate: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn().AnErr("source", srcErr).AnErr("db", dbErr).Msg("migrate close")
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: apply migrations: %w", err)
	}
	logger.Info().Msg("migrations up to date")
	return nil
}
