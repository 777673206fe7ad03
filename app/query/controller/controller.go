package controller

import (
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/app/query/types"
)

type Controller struct {
	App *types.App
	// Feed delivers notifications to /ws clients. It is nil when Redis is disabled.
	Feed Feed
	// Prefix is the first segment of every notification channel.
	Prefix string
	// JWTSecret enables bearer authentication on every route but /health when set.
	JWTSecret []byte
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	c := &Controller{App: app, Prefix: app.Config.Redis.ChannelPrefix}
	if app.Redis != nil {
		c.Feed = NewRedisFeed(app.Redis)
	}
	if app.Config.Query.JWTSecret != "" {
		c.JWTSecret = []byte(app.Config.Query.JWTSecret)
	}
	return c
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/health", http.HandlerFunc(c.HandleHealth)).Methods("GET")

	api := r.NewRoute().Subrouter()
	api.Use(c.RequireAuth)
	api.HandleFunc("/eras", c.HandleEras).Methods("GET")
	api.HandleFunc("/eras/{era}/payouts", c.HandleEraPayouts).Methods("GET")
	api.HandleFunc("/validators/{id}/payouts", c.HandleValidatorPayouts).Methods("GET")
	api.HandleFunc("/accounts/{id}", c.HandleAccount).Methods("GET")
	api.HandleFunc("/accounts/{id}/history", c.HandleHistory).Methods("GET")
	api.HandleFunc("/ws", c.HandleWebSocket).Methods("GET")

	return r, nil
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes data as a JSON response with the given status code.
func (c *Controller) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		c.App.Logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError writes {"error": message} with the given status code.
func (c *Controller) writeError(w http.ResponseWriter, statusCode int, message string) {
	c.writeJSON(w, statusCode, map[string]string{"error": message})
}
