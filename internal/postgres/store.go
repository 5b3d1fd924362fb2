// Package postgres stores monitors and checks in PostgreSQL (including
// Supabase-hosted databases) through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HerbHall/uptimed/internal/monitor"
	"github.com/HerbHall/uptimed/pkg/models"
)

// Compile-time interface guards.
var (
	_ monitor.Repository    = (*Store)(nil)
	_ monitor.MonitorSource = (*Store)(nil)
	_ monitor.MonitorWriter = (*Store)(nil)
	_ monitor.CheckPruner   = (*Store)(nil)
)

// Store implements the monitor persistence interfaces on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, verifies the connection and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres schema: %w", err)
	}
	return s, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS monitors (
		id                         TEXT PRIMARY KEY,
		name                       TEXT NOT NULL,
		url                        TEXT NOT NULL,
		type                       TEXT NOT NULL,
		interval_ms                BIGINT NOT NULL,
		timeout_ms                 BIGINT NOT NULL,
		active                     BOOLEAN NOT NULL DEFAULT TRUE,
		ignore_http_403            BOOLEAN NOT NULL DEFAULT FALSE,
		content_validation_enabled BOOLEAN,
		min_content_length         INTEGER NOT NULL DEFAULT 0,
		min_text_length            INTEGER NOT NULL DEFAULT 0,
		created_at                 TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at                 TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_monitors_created_at_id ON monitors (created_at, id);

	CREATE TABLE IF NOT EXISTS checks (
		id               TEXT PRIMARY KEY,
		monitor_id       TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
		status           TEXT NOT NULL,
		response_time_ms BIGINT,
		error_message    TEXT,
		status_code      INTEGER,
		checked_at       TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_checks_monitor_checked ON checks (monitor_id, checked_at DESC);
	CREATE INDEX IF NOT EXISTS idx_checks_checked_at ON checks (checked_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// SaveMonitor inserts or updates a monitor's configuration.
func (s *Store) SaveMonitor(ctx context.Context, m *models.Monitor) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO monitors (
			id, name, url, type, interval_ms, timeout_ms, active, ignore_http_403,
			content_validation_enabled, min_content_length, min_text_length, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			type = EXCLUDED.type,
			interval_ms = EXCLUDED.interval_ms,
			timeout_ms = EXCLUDED.timeout_ms,
			active = EXCLUDED.active,
			ignore_http_403 = EXCLUDED.ignore_http_403,
			content_validation_enabled = EXCLUDED.content_validation_enabled,
			min_content_length = EXCLUDED.min_content_length,
			min_text_length = EXCLUDED.min_text_length,
			updated_at = EXCLUDED.updated_at`,
		m.ID, m.Name, m.URL, string(m.Type), m.Interval, m.Timeout, m.Active, m.IgnoreHTTP403,
		m.ContentValidationEnabled, m.MinContentLength, m.MinTextLength, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save monitor: %w", err)
	}
	return nil
}

// getMonitor returns a monitor by ID, or nil, nil if it does not exist.
func (s *Store) getMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	m, err := scanMonitor(s.pool.QueryRow(ctx, selectMonitor+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor: %w", err)
	}
	return m, nil
}

// ListMonitors returns every stored monitor in creation order.
func (s *Store) ListMonitors(ctx context.Context) ([]models.Monitor, error) {
	rows, err := s.pool.Query(ctx, selectMonitor+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()

	var out []models.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitor row: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// DeleteMonitor removes a monitor. Its checks go with it (ON DELETE CASCADE).
func (s *Store) DeleteMonitor(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM monitors WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	return nil
}

const selectMonitor = `
	SELECT id, name, url, type, interval_ms, timeout_ms, active, ignore_http_403,
		content_validation_enabled, min_content_length, min_text_length, created_at, updated_at
	FROM monitors`

func scanMonitor(row pgx.Row) (*models.Monitor, error) {
	var (
		m   models.Monitor
		typ string
	)
	if err := row.Scan(
		&m.ID, &m.Name, &m.URL, &typ, &m.Interval, &m.Timeout, &m.Active, &m.IgnoreHTTP403,
		&m.ContentValidationEnabled, &m.MinContentLength, &m.MinTextLength, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	m.Type = models.MonitorType(typ)
	m.Status = models.MonitorStatusUnknown
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

// CreateCheck inserts one check result.
func (s *Store) CreateCheck(ctx context.Context, c *models.Check) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO checks (id, monitor_id, status, response_time_ms, error_message, status_code, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.MonitorID, string(c.Status), c.ResponseTime, c.ErrorMessage, c.StatusCode, c.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

// GetRecentChecks returns up to limit checks of a monitor, newest first.
func (s *Store) GetRecentChecks(ctx context.Context, monitorID string, limit int) ([]models.Check, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, monitor_id, status, response_time_ms, error_message, status_code, checked_at
		FROM checks WHERE monitor_id = $1
		ORDER BY checked_at DESC LIMIT $2`,
		monitorID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get recent checks: %w", err)
	}
	defer rows.Close()

	var out []models.Check
	for rows.Next() {
		var (
			c      models.Check
			status string
		)
		// pgx leaves pointer destinations nil for NULL columns.
		if err := rows.Scan(&c.ID, &c.MonitorID, &status, &c.ResponseTime, &c.ErrorMessage, &c.StatusCode, &c.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan check row: %w", err)
		}
		c.Status = models.CheckStatus(status)
		c.CheckedAt = c.CheckedAt.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteChecksBefore removes checks older than before.
func (s *Store) DeleteChecksBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM checks WHERE checked_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete old checks: %w", err)
	}
	return tag.RowsAffected(), nil
}
