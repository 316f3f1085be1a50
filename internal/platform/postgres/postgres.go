// Package postgres opens the shared database/sql pool on the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"safecircle/internal/platform/config"
)

// Open returns nil when no URL is configured so callers fall back to the
// in-memory stores.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := Ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("db pool is nil")
	}
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Migrate creates the tables used by the PostgreSQL stores.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS escalations (
		id            UUID PRIMARY KEY,
		version       BIGINT NOT NULL,
		created_by    UUID NOT NULL,
		current_owner UUID NOT NULL,
		status        TEXT NOT NULL,
		current_level SMALLINT NOT NULL,
		responder_ids UUID[] NOT NULL DEFAULT '{}',
		body          JSONB NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS escalations_created_by_idx ON escalations (created_by)`,
	`CREATE INDEX IF NOT EXISTS escalations_current_owner_idx ON escalations (current_owner)`,
	`CREATE INDEX IF NOT EXISTS escalations_responder_ids_idx ON escalations USING GIN (responder_ids)`,
	`CREATE TABLE IF NOT EXISTS notification_records (
		id            UUID PRIMARY KEY,
		user_id       UUID NOT NULL,
		escalation_id UUID NOT NULL,
		type          TEXT NOT NULL,
		priority      SMALLINT NOT NULL,
		dedup_key     TEXT NOT NULL UNIQUE,
		body          JSONB NOT NULL,
		has_failure   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS notification_records_user_idx ON notification_records (user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS notification_preferences (
		user_id    UUID PRIMARY KEY,
		body       JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id            UUID PRIMARY KEY,
		category      TEXT NOT NULL,
		occurred_at   TIMESTAMPTZ NOT NULL,
		user_id       UUID,
		escalation_id TEXT,
		subject       TEXT NOT NULL,
		action        TEXT NOT NULL,
		decision      TEXT NOT NULL,
		reason        TEXT NOT NULL,
		request_id    TEXT NOT NULL,
		client_ip     TEXT NOT NULL DEFAULT '',
		user_agent    TEXT NOT NULL DEFAULT '',
		actor_id      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS audit_events_user_idx ON audit_events (user_id)`,
	`CREATE INDEX IF NOT EXISTS audit_events_escalation_idx ON audit_events (escalation_id)`,
}
