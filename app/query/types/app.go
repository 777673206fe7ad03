package types

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/config"
	"github.com/canopy-network/payoutx/pkg/db"
	"github.com/canopy-network/payoutx/pkg/redis"
)

type App struct {
	Config config.Config
	Store  db.Store
	// Redis is nil when real-time notifications are disabled.
	Redis *redis.Client
	// Zap Logger
	Logger *zap.Logger
	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// Start serves until ctx is cancelled, then shuts the server down and closes the backing stores.
func (a *App) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		a.Logger.Error("Query server stopped", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(shutdownCtx)

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("Failed to close redis connection", zap.Error(err))
		}
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Error("Failed to close database connection", zap.Error(err))
	}

	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
	return serveErr
}
