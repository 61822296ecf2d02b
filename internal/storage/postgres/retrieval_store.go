// Package postgres records one audit row per rendered application page.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/storefront-review-crawler/internal/crawler"
)

const defaultTable = "render_retrievals"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RetrievalStoreConfig controls the Postgres connection pool used for audit rows.
type RetrievalStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RetrievalStore writes render audit rows into Postgres.
type RetrievalStore struct {
	pool  execCloser
	table string
}

// NewRetrievalStore connects a pool using the provided config.
func NewRetrievalStore(ctx context.Context, cfg RetrievalStoreConfig) (*RetrievalStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RetrievalStore{pool: pool, table: table}, nil
}

// NewRetrievalStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRetrievalStoreWithPool(pool execCloser, table string) (*RetrievalStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RetrievalStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		return defaultTable, nil
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RetrievalStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the audit table if it does not exist.
func (s *RetrievalStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	app_id TEXT NOT NULL,
	retrieval_url TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	blob_location TEXT,
	expansions INTEGER NOT NULL,
	comment_count INTEGER NOT NULL,
	duration_ms BIGINT NOT NULL,
	retrieved_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// StoreRetrieval inserts one audit row.
func (s *RetrievalStore) StoreRetrieval(ctx context.Context, record crawler.RetrievalRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("retrieval store is not configured")
	}
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	app_id,
	retrieval_url,
	content_hash,
	blob_location,
	expansions,
	comment_count,
	duration_ms,
	retrieved_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`, s.table)

	args := []any{
		record.ID,
		record.AppID,
		record.URL,
		record.Hash,
		record.BlobURI,
		record.Expansions,
		record.CommentCount,
		record.DurationMs,
		record.RetrievedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert retrieval: %w", err)
	}
	return nil
}
