package query

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/app/query/controller"
	"github.com/canopy-network/payoutx/app/query/types"
)

// NewServer builds the router and attaches an http.Server bound to Query.Listen.
func NewServer(app *types.App) error {
	ctler := controller.NewController(app)
	router, err := ctler.NewRouter()
	if err != nil {
		return err
	}

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := app.Config.Query.Listen

	app.Server = &http.Server{
		Addr:              addr,
		Handler:           controller.WithCORS(router),
		ReadHeaderTimeout: 5 * time.Second,
	}
	app.Logger.Info("Starting server", zap.String("addr", addr))

	return nil
}
