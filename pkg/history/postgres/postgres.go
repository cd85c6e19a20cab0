// Package postgres stores run history in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/finquery/pkg/history"
)

const uniqueViolation = "23505"

// Store is a PostgreSQL-backed history.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ history.Store = (*Store)(nil)

// New connects, verifies the connection and optionally migrates.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}
	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

// Save inserts a run under the context tenant.
func (s *Store) Save(ctx context.Context, run *history.Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (
			id, tenant_id, query, success, answer,
			tool_used, generated_code, code_hash, raw_api_response, failed_stage,
			duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		run.ID, history.TenantFrom(ctx), run.Query, run.Success, run.Answer,
		nullString(run.ToolUsed), nullString(run.GeneratedCode), nullString(run.CodeHash),
		nullString(run.RawAPIResponse), nullString(run.FailedStage),
		run.Duration.Milliseconds(), run.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return history.ErrConflict
		}
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, tenant_id, query, success, answer,
	       tool_used, generated_code, code_hash, raw_api_response, failed_stage,
	       duration_ms, created_at
	FROM runs`

// Get returns one run.
func (s *Store) Get(ctx context.Context, id string) (*history.Run, error) {
	q := selectColumns + " WHERE id = $1"
	args := []any{id}
	if tenant := history.TenantFrom(ctx); tenant != "" {
		q += " AND tenant_id = $2"
		args = append(args, tenant)
	}

	run, err := scanRun(s.pool.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, history.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return run, nil
}

// List returns runs newest first using keyset pagination on
// (created_at, id).
func (s *Store) List(ctx context.Context, opts history.ListOptions) (*history.Page, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if tenant := history.TenantFrom(ctx); tenant != "" {
		where = append(where, "tenant_id = "+arg(tenant))
	}
	if opts.Tool != "" {
		where = append(where, "tool_used = "+arg(opts.Tool))
	}
	if opts.After != "" {
		// An unknown cursor yields NULL and therefore no rows.
		where = append(where, "(created_at, id) < (SELECT created_at, id FROM runs WHERE id = "+arg(opts.After)+")")
	}

	q := selectColumns
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := opts.EffectiveLimit()
	q += " ORDER BY created_at DESC, id DESC LIMIT " + arg(limit+1)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	page := &history.Page{Runs: []*history.Run{}}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		page.Runs = append(page.Runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	if len(page.Runs) > limit {
		page.Runs = page.Runs[:limit]
		page.HasMore = true
	}
	return page, nil
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRun(row pgx.Row) (*history.Run, error) {
	var r history.Run
	var tool, code, hash, raw, failedStage *string
	var durationMs int64
	err := row.Scan(
		&r.ID, &r.Tenant, &r.Query, &r.Success, &r.Answer,
		&tool, &code, &hash, &raw, &failedStage,
		&durationMs, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.ToolUsed = deref(tool)
	r.GeneratedCode = deref(code)
	r.CodeHash = deref(hash)
	r.RawAPIResponse = deref(raw)
	r.FailedStage = deref(failedStage)
	r.Duration = time.Duration(durationMs) * time.Millisecond
	return &r, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
