package storage

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS check_runs (
        run_id      TEXT PRIMARY KEY,
        tick_ts     TIMESTAMPTZ NOT NULL,
        latitude    NUMERIC(9,6),
        longitude   NUMERIC(9,6),
        method      TEXT NOT NULL DEFAULT '',
        status      TEXT NOT NULL,
        matched     TEXT[] NOT NULL DEFAULT '{}',
        error       TEXT,
        duration_ms BIGINT NOT NULL DEFAULT 0,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE INDEX IF NOT EXISTS check_runs_tick_ts_idx ON check_runs (tick_ts DESC);`,
	`CREATE TABLE IF NOT EXISTS notification_log (
        id              BIGSERIAL PRIMARY KEY,
        run_id          TEXT NOT NULL,
        day             DATE NOT NULL,
        prayer          TEXT NOT NULL,
        notification_id BIGINT NOT NULL,
        prayer_ts       TIMESTAMPTZ NOT NULL,
        sends           INTEGER NOT NULL DEFAULT 1,
        error           TEXT,
        created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (day, prayer)
    );`,
}

// EnsureSchema creates the audit tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
