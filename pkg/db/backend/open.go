package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/config"
	"github.com/canopy-network/payoutx/pkg/db"
	"github.com/canopy-network/payoutx/pkg/db/clickhouse"
	"github.com/canopy-network/payoutx/pkg/db/memory"
	"github.com/canopy-network/payoutx/pkg/db/postgres"
)

// Open connects the configured backend and creates its schema. component selects the pool
// profile ("indexer", "query", "replay").
func Open(ctx context.Context, logger *zap.Logger, cfg config.StoreConfig, component string) (db.Store, error) {
	switch cfg.Backend {
	case config.StoreMemory, "":
		logger.Warn("using the in-memory store; entities are lost on restart")
		return memory.New(), nil
	case config.StoreClickHouse:
		client, err := clickhouse.New(ctx, logger, cfg.ClickHouseDSN, cfg.Database, clickhouse.GetPoolConfigForComponent(component))
		if err != nil {
			return nil, fmt.Errorf("connect clickhouse: %w", err)
		}
		store, err := clickhouse.NewStore(ctx, &client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return store, nil
	case config.StorePostgres:
		client, err := postgres.New(ctx, logger, cfg.PostgresURL, postgres.GetPoolConfigForComponent(component))
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		store, err := postgres.NewStore(ctx, &client)
		if err != nil {
			client.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
