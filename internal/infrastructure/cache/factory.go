package cache

import (
	"context"
	"fmt"

	"github.com/hera/autojournal/internal/domain/shared"
	"github.com/hera/autojournal/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewIdempotencyStore builds the store named by cfg.Idempotency.Backend. A
// redis backend that cannot be reached falls back to memory outside
// production, and fails in production.
func NewIdempotencyStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (shared.IdempotencyStore, error) {
	switch cfg.Idempotency.Backend {
	case "memory":
		logger.Info("Using in-memory idempotency store")
		return NewInMemoryIdempotencyStore(0), nil
	case "redis":
		client, err := NewRedisClient(ctx, cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
		if err == nil {
			logger.Info("Using Redis idempotency store", zap.String("addr", cfg.Redis.Addr()))
			return NewRedisIdempotencyStore(client, ""), nil
		}
		if cfg.App.Env == "production" {
			return nil, fmt.Errorf("redis idempotency store unavailable: %w", err)
		}
		logger.Warn("Redis unavailable, falling back to in-memory idempotency store",
			zap.Error(err),
		)
		return NewInMemoryIdempotencyStore(0), nil
	default:
		return nil, fmt.Errorf("unknown idempotency backend %q", cfg.Idempotency.Backend)
	}
}
