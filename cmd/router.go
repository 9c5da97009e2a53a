package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/angeloszaimis/localweb/internal/channel"
	"github.com/angeloszaimis/localweb/internal/healthcheck"
	"github.com/angeloszaimis/localweb/internal/metrics"
)

// setupAdminRouter serves operational endpoints on the admin listener,
// away from the forwarded namespace. A nil prober reports healthy.
func setupAdminRouter(collector *metrics.Collector, prober *healthcheck.Prober, forwarder *channel.Forwarder, destination string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/metrics", collector.Handler(destination))
	r.Get("/health", prober.Handler())
	r.Get("/channels", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(forwarder.Stats()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	return r
}
