package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/Cocoseas/lambosync/telemetry"
)

// RegisterRoutes mounts the cache read API and metrics on the given mux
func RegisterRoutes(mux *http.ServeMux, handlers *Handlers) {
	r := chi.NewRouter()

	r.Get("/entries", handlers.handleListEntries)
	r.Get("/entries/{key}", handlers.handleGetEntry)

	mux.Handle("/cache", http.RedirectHandler("/cache/", http.StatusMovedPermanently))
	mux.Handle("/cache/", http.StripPrefix("/cache", r))

	if metricsHandler := telemetry.GetMetricsHandler(); metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	log.Info().Msg("Cache read API enabled at /cache/entries")
}
