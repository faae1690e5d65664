package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"ramadan-companion/internal/config"
)

const applicationName = "ramadan-companion"

// NewPool parses the audit DSN and applies pool limits. The pool is verified
// with a ping so a wrong DSN fails at startup rather than on the first tick.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse audit dsn: %w", err)
	}
	applyLimits(pc, cfg)
	if _, ok := pc.ConnConfig.RuntimeParams["application_name"]; !ok {
		pc.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open audit pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}
	return pool, nil
}

func applyLimits(pc *pgxpool.Config, cfg config.DatabaseConfig) {
	if n := cfg.MaxOpenConns; n > 0 {
		pc.MaxConns = int32(n)
	}
	if n := cfg.MaxIdleConns; n > 0 && (cfg.MaxOpenConns <= 0 || n <= cfg.MaxOpenConns) {
		pc.MinConns = int32(n)
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = cfg.ConnMaxLifetime
	}
}

// Open connects the audit log and creates its tables when auto_migrate is set.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := NewStore(pool)
	if !cfg.AutoMigrate {
		return store, nil
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
