// Package postgres writes run reports as rows in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	statusOK     = "ok"
	statusFailed = "failed"
)

// Config controls the Postgres connection pool used for report rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ReportStore inserts one row per namespace outcome.
type ReportStore struct {
	pool  execCloser
	table string
}

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config) (*ReportStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("report.dsn is required")
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
	store, err := NewWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table string) (*ReportStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "namespace_counts"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ReportStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ReportStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveReport inserts every result and failure of report, keyed by run id.
func (s *ReportStore) SaveReport(ctx context.Context, report crawler.Report) (string, error) {
	if s == nil || s.pool == nil {
		return "", fmt.Errorf("report store is not configured")
	}
	if report.RunID == "" {
		return "", fmt.Errorf("report run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	site,
	namespace,
	amount,
	status,
	error,
	finished_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)`, s.table)

	for _, res := range report.Results {
		args := []any{report.RunID, report.Site, int(res.Namespace), res.Amount, statusOK, "", report.FinishedAt}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return "", fmt.Errorf("insert namespace %d: %w", res.Namespace, err)
		}
	}
	for _, f := range report.Failures {
		args := []any{report.RunID, report.Site, int(f.Namespace), 0, statusFailed, f.Err, report.FinishedAt}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return "", fmt.Errorf("insert failed namespace %d: %w", f.Namespace, err)
		}
	}
	return fmt.Sprintf("postgres://%s/%s", s.table, report.RunID), nil
}
