package monitor

import (
	"database/sql"

	"github.com/HerbHall/uptimed/internal/store"
)

func migrations() []store.Migration {
	return []store.Migration{
		{
			Version:     1,
			Description: "create monitors and checks tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS monitors (
						id TEXT PRIMARY KEY,
						name TEXT NOT NULL,
						url TEXT NOT NULL,
						type TEXT NOT NULL DEFAULT 'http',
						interval_ms INTEGER NOT NULL,
						timeout_ms INTEGER NOT NULL,
						active INTEGER NOT NULL DEFAULT 1,
						ignore_http_403 INTEGER NOT NULL DEFAULT 0,
						content_validation_enabled INTEGER,
						min_content_length INTEGER NOT NULL DEFAULT 0,
						min_text_length INTEGER NOT NULL DEFAULT 0,
						created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,

					`CREATE TABLE IF NOT EXISTS checks (
						id TEXT PRIMARY KEY,
						monitor_id TEXT NOT NULL,
						status TEXT NOT NULL,
						response_time_ms INTEGER,
						error_message TEXT,
						status_code INTEGER,
						checked_at DATETIME NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_checks_monitor_time ON checks(monitor_id, checked_at)`,
					`CREATE INDEX IF NOT EXISTS idx_checks_time ON checks(checked_at)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
