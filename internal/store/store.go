// Package store persists research tasks across the supported backends.
package store

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/scholar/config"
	"github.com/mohammad-safakhou/scholar/internal/research"
)

// FromConfig builds the configured task store backend.
func FromConfig(ctx context.Context, cfg config.StorageConfig) (research.TaskStore, error) {
	switch cfg.Backend {
	case "postgres":
		dsn, err := cfg.Postgres.DSN()
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(ctx, dsn)
	case "redis":
		return NewRedisStore(ctx, cfg.Redis)
	case "memory", "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
