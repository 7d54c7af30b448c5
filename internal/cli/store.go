// Package cli implements the commands of the autotron binary.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/autotron/internal/config"
	"github.com/aretw0/autotron/pkg/adapters/file"
	"github.com/aretw0/autotron/pkg/adapters/memory"
	"github.com/aretw0/autotron/pkg/adapters/redis"
	"github.com/aretw0/autotron/pkg/persistence/middleware"
	"github.com/aretw0/autotron/pkg/ports"
)

const pingTimeout = 3 * time.Second

// OpenStore builds the graph store selected by cfg.Store, encrypted when
// cfg.Encryption is set.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.GraphStore, error) {
	store, err := openBackend(ctx, cfg, logger)
	if err != nil || !cfg.Encryption.Enabled() {
		return store, err
	}

	keys, err := middleware.ParseKeys(cfg.Encryption.Key, cfg.Encryption.FallbackKeys...)
	if err != nil {
		return nil, err
	}
	encrypt, err := middleware.NewEncryptionMiddleware(keys)
	if err != nil {
		return nil, err
	}
	logger.Info("Stored graphs are encrypted", "fallback_keys", len(keys.FallbackKeys))
	return encrypt(store), nil
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.GraphStore, error) {
	switch cfg.Store {
	case config.StoreFile:
		return file.New(cfg.GraphDir, file.WithLogger(logger)), nil

	case config.StoreMemory:
		return memory.NewStore(), nil

	case config.StoreRedis:
		prefix := cfg.Redis.Prefix
		if prefix != "" {
			prefix += ":graph:"
		}
		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, redis.WithPrefix(prefix))
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if _, err := store.List(pingCtx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("redis store at %s unavailable: %w", cfg.Redis.Addr, err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
}
