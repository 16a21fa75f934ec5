package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Diagnostics are read-only.
		r.Get("/registry", s.handleListRegistry)
		r.Get("/registry/resolve", s.handleResolve)
		r.Get("/mappings", s.handleListMappings)
		r.Get("/props", s.handleListProps)
		r.Get("/units", s.handleListUnits)
		r.Get("/nodes/{name}", s.handleGetNode)
		r.Get("/misses", s.handleListMisses)
		r.Get("/authored", s.handleGetAuthored)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/events/object", s.handleObjectEvent)
			r.Post("/events/transform", s.handleTransformEvent)
			r.Get("/ws", s.handleWebSocket)
			r.Get("/audit", s.handleListAudit)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"show":    s.showID,
		"version": s.version,
	}
	if s.mqtt != nil {
		resp["mqtt_connected"] = s.mqtt.IsConnected()
	}
	writeJSON(w, http.StatusOK, resp)
}
