package kvstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Config selects and configures a backend.
type Config struct {
	Backend string       `mapstructure:"backend"`
	Badger  BadgerConfig `mapstructure:"badger"`
	Redis   RedisConfig  `mapstructure:"redis"`
}

// Open builds the configured backend. Supported backends are badger, redis
// and memory.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "badger":
		return OpenBadger(cfg.Badger, logger)
	case "redis":
		return NewRedis(ctx, cfg.Redis)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("kvstore: unknown backend %q", cfg.Backend)
	}
}
