package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Import postgres driver
)

const schema = `
CREATE TABLE IF NOT EXISTS undelivered_results (
	id              BIGSERIAL PRIMARY KEY,
	kind            TEXT        NOT NULL,
	path            TEXT        NOT NULL,
	body            JSONB       NOT NULL,
	participant_ids TEXT[]      NOT NULL DEFAULT '{}',
	attempts        INTEGER     NOT NULL DEFAULT 0,
	last_error      TEXT        NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	delivered_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS undelivered_results_pending_idx
	ON undelivered_results (created_at) WHERE delivered_at IS NULL;
`

func Connect(dsn string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database handle: %w", err)
	}

	// Пул небольшой: база нужна только для недоставленных результатов.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database within %v: %w", timeout, err)
	}

	return db, nil
}

// EnsureSchema создаёт таблицы, в которые пишет сервис.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
