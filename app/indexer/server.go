package indexer

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// SetupServer builds the metrics and probe server on Metrics.Listen.
func (a *App) SetupServer() {
	r := mux.NewRouter()
	r.Handle("/metrics", a.Metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Ready(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	a.Server = &http.Server{
		Addr:              a.Config.Metrics.Listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Ready checks that the checkpoint store answers.
func (a *App) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := a.Store.LastIndexed(ctx, a.Config.Chain.Name)
	return err
}
