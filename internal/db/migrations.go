package db

import (
	"fmt"

	"gorm.io/gorm"
)

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		ts_utc       TEXT NOT NULL,
		camera_id    TEXT NOT NULL,
		subject      TEXT NOT NULL,
		arrival      TEXT NOT NULL,
		plate_text   TEXT NULL,
		confidence   REAL NULL,
		payload_json TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_events_ts_utc ON events(ts_utc);`,
	`CREATE INDEX IF NOT EXISTS idx_events_plate_text ON events(plate_text);`,
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id           BIGSERIAL PRIMARY KEY,
		ts_utc       TEXT NOT NULL,
		camera_id    TEXT NOT NULL,
		subject      TEXT NOT NULL,
		arrival      TEXT NOT NULL,
		plate_text   TEXT,
		confidence   DOUBLE PRECISION,
		payload_json JSONB NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_events_ts_utc ON events(ts_utc);`,
	`CREATE INDEX IF NOT EXISTS idx_events_plate_text ON events(plate_text);`,
}

func runMigrations(db *gorm.DB) error {
	stmts := sqliteMigrations
	if db.Dialector.Name() == "postgres" {
		stmts = postgresMigrations
	}
	for i, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
