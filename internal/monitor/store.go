package monitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/uptimed/internal/store"
	"github.com/HerbHall/uptimed/pkg/models"
)

// Compile-time interface guards.
var (
	_ Repository    = (*SQLStore)(nil)
	_ MonitorSource = (*SQLStore)(nil)
	_ MonitorWriter = (*SQLStore)(nil)
	_ CheckPruner   = (*SQLStore)(nil)
)

// SQLStore persists monitors and checks in SQLite.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore runs the monitor migrations on db and returns a store over it.
func NewSQLStore(ctx context.Context, db *store.SQLiteStore) (*SQLStore, error) {
	if err := db.Migrate(ctx, "monitor", migrations()); err != nil {
		return nil, fmt.Errorf("migrate monitor schema: %w", err)
	}
	return &SQLStore{db: db.DB()}, nil
}

// -- Monitors --

// SaveMonitor inserts or replaces a monitor's configuration.
func (s *SQLStore) SaveMonitor(ctx context.Context, m *models.Monitor) error {
	var cv sql.NullBool
	if m.ContentValidationEnabled != nil {
		cv = sql.NullBool{Bool: *m.ContentValidationEnabled, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitors (
			id, name, url, type, interval_ms, timeout_ms, active, ignore_http_403,
			content_validation_enabled, min_content_length, min_text_length, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			url = excluded.url,
			type = excluded.type,
			interval_ms = excluded.interval_ms,
			timeout_ms = excluded.timeout_ms,
			active = excluded.active,
			ignore_http_403 = excluded.ignore_http_403,
			content_validation_enabled = excluded.content_validation_enabled,
			min_content_length = excluded.min_content_length,
			min_text_length = excluded.min_text_length,
			updated_at = excluded.updated_at`,
		m.ID, m.Name, m.URL, string(m.Type), m.Interval, m.Timeout, m.Active, m.IgnoreHTTP403,
		cv, m.MinContentLength, m.MinTextLength, m.CreatedAt.UTC(), m.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save monitor: %w", err)
	}
	return nil
}

// getMonitor returns a monitor by ID, or nil, nil if it does not exist.
func (s *SQLStore) getMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	row := s.db.QueryRowContext(ctx, selectMonitor+` WHERE id = ?`, id)
	m, err := scanMonitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor: %w", err)
	}
	return m, nil
}

// ListMonitors returns every stored monitor in creation order.
func (s *SQLStore) ListMonitors(ctx context.Context) ([]models.Monitor, error) {
	rows, err := s.db.QueryContext(ctx, selectMonitor+` ORDER BY created_at, id`)
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

// DeleteMonitor removes a monitor and its checks.
func (s *SQLStore) DeleteMonitor(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM checks WHERE monitor_id = ?`, id); err != nil {
		return fmt.Errorf("delete monitor checks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM monitors WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	return tx.Commit()
}

const selectMonitor = `
	SELECT id, name, url, type, interval_ms, timeout_ms, active, ignore_http_403,
		content_validation_enabled, min_content_length, min_text_length, created_at, updated_at
	FROM monitors`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMonitor(row rowScanner) (*models.Monitor, error) {
	var (
		m   models.Monitor
		typ string
		cv  sql.NullBool
	)
	if err := row.Scan(
		&m.ID, &m.Name, &m.URL, &typ, &m.Interval, &m.Timeout, &m.Active, &m.IgnoreHTTP403,
		&cv, &m.MinContentLength, &m.MinTextLength, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	m.Type = models.MonitorType(typ)
	m.Status = models.MonitorStatusUnknown
	if cv.Valid {
		v := cv.Bool
		m.ContentValidationEnabled = &v
	}
	return &m, nil
}

// -- Checks --

// CreateCheck inserts one check result.
func (s *SQLStore) CreateCheck(ctx context.Context, c *models.Check) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checks (id, monitor_id, status, response_time_ms, error_message, status_code, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.MonitorID, string(c.Status), c.ResponseTime, c.ErrorMessage, c.StatusCode, c.CheckedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

// GetRecentChecks returns up to limit checks of a monitor, newest first.
func (s *SQLStore) GetRecentChecks(ctx context.Context, monitorID string, limit int) ([]models.Check, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, monitor_id, status, response_time_ms, error_message, status_code, checked_at
		FROM checks WHERE monitor_id = ?
		ORDER BY checked_at DESC LIMIT ?`,
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
			rt     sql.NullInt64
			msg    sql.NullString
			code   sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.MonitorID, &status, &rt, &msg, &code, &c.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan check row: %w", err)
		}
		c.Status = models.CheckStatus(status)
		if rt.Valid {
			v := rt.Int64
			c.ResponseTime = &v
		}
		if msg.Valid {
			v := msg.String
			c.ErrorMessage = &v
		}
		if code.Valid {
			v := int(code.Int64)
			c.StatusCode = &v
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteChecksBefore removes checks older than before.
func (s *SQLStore) DeleteChecksBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checks WHERE checked_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete old checks: %w", err)
	}
	return res.RowsAffected()
}
