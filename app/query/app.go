package query

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/app/query/types"
	"github.com/canopy-network/payoutx/pkg/config"
	"github.com/canopy-network/payoutx/pkg/db/backend"
	"github.com/canopy-network/payoutx/pkg/redis"
)

// Initialize opens the read store and, when enabled, the Redis connection used by /ws.
func Initialize(ctx context.Context, cfg config.Config, logger *zap.Logger) (*types.App, error) {
	store, err := backend.Open(ctx, logger, cfg.Store, "query")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// Redis is optional: without it the REST API still works and /ws answers 503.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(ctx, logger, cfg.Redis)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - WebSocket real-time events will be disabled",
				zap.Error(err))
			redisClient = nil
		} else {
			logger.Info("Redis client initialized for WebSocket real-time events")
		}
	} else {
		logger.Info("Redis disabled - WebSocket real-time events will not be available")
	}

	app := &types.App{
		Config: cfg,
		Store:  store,
		Redis:  redisClient,
		Logger: logger,
	}
	if err := NewServer(app); err != nil {
		_ = store.Close()
		return nil, err
	}
	return app, nil
}
