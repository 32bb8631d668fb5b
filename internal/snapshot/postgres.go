package snapshot

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/redirect-chains/internal/redirect"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "redirect_chains"

// PostgresConfig controls the pool used to mirror the chain table.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type txBeginCloser interface {
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// PostgresWriter upserts every table row in a single transaction. The
// target table is expected to look like:
//
//	CREATE TABLE redirect_chains (
//		chain       TEXT PRIMARY KEY,
//		seed_url    TEXT NOT NULL,
//		hops        INTEGER NOT NULL,
//		occurrences INTEGER NOT NULL,
//		updated_at  TIMESTAMPTZ NOT NULL
//	);
type PostgresWriter struct {
	pool  txBeginCloser
	table string
	now   func() time.Time
}

// NewPostgresWriter connects a pool using cfg.
func NewPostgresWriter(ctx context.Context, cfg PostgresConfig) (*PostgresWriter, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("snapshot.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	w, err := NewPostgresWriterWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return w, nil
}

// NewPostgresWriterWithPool constructs a writer from an existing pool
// (primarily for testing).
func NewPostgresWriterWithPool(pool txBeginCloser, table string) (*PostgresWriter, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresWriter{pool: pool, table: table, now: time.Now}, nil
}

// Close releases the pool.
func (w *PostgresWriter) Close() {
	if w == nil || w.pool == nil {
		return
	}
	w.pool.Close()
}

// Persist implements redirect.Persister.
func (w *PostgresWriter) Persist(ctx context.Context, entries []redirect.Entry) (err error) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (chain, seed_url, hops, occurrences, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (chain) DO UPDATE
SET occurrences = EXCLUDED.occurrences, updated_at = EXCLUDED.updated_at`, w.table)

	at := w.now().UTC()
	for _, entry := range entries {
		if _, err = tx.Exec(ctx, query, entry.Chain.Key(), entry.Chain.Seed(), len(entry.Chain), entry.Count, at); err != nil {
			return fmt.Errorf("upsert chain: %w", err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
