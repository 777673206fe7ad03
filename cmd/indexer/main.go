package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/app/indexer"
	"github.com/canopy-network/payoutx/pkg/config"
	"github.com/canopy-network/payoutx/pkg/logging"
	"github.com/canopy-network/payoutx/pkg/utils"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logging.Must(logging.New())
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(utils.Env("PAYOUTX_CONFIG", ""))
	if err != nil {
		logger.Fatal("Unable to load configuration", zap.Error(err))
	}

	app, err := indexer.Initialize(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Unable to initialize indexer", zap.Error(err))
	}
	if err := app.Start(ctx); err != nil {
		logger.Fatal("Indexer stopped", zap.Error(err))
	}
}
