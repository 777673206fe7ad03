package controller

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	height, err := c.App.Store.LastIndexed(ctx, c.App.Config.Chain.Name)
	if err != nil {
		c.App.Logger.Warn("Health check failed", zap.Error(err))
		c.writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "errored", "error": "database connection error"})
		return
	}

	if c.App.Redis != nil {
		if err := c.App.Redis.Health(ctx); err != nil {
			c.writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "errored", "error": "redis connection error"})
			return
		}
	}

	c.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "store": c.App.Store.Name(), "lastIndexed": height})
}
