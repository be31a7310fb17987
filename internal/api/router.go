package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
// ctx bounds background middleware goroutines.
func (s *Server) buildRouter(ctx context.Context) http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	if s.cfg.RateLimit.Enabled {
		r.Use(s.rateLimitMiddleware(ctx))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleCreateDevice)
			r.Get("/stats", s.handleDeviceStats)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Delete("/", s.handleDeleteDevice)
				r.Post("/connect", s.handleConnectDevice)

				r.Get("/config", s.handleGetDeviceConfig)
				r.Put("/config", s.handleSaveDeviceConfig)
				r.Delete("/config", s.handleResetDeviceConfig)
			})
		})

		r.Get("/candidates", s.handleListCandidates)

		r.Route("/connection", func(r chi.Router) {
			r.Get("/", s.handleGetConnection)
			r.Post("/scan", s.handleStartScan)
			r.Delete("/scan", s.handleStopScan)
			r.Post("/disconnect", s.handleDisconnect)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Post("/", s.handleCreateAlert)
			r.Delete("/", s.handleClearAlerts)
			r.Post("/{id}/read", s.handleMarkAlertRead)
		})

		r.Get("/events", s.handleListEvents)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
