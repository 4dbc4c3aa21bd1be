package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/geofence-relay/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Monitoring (no auth required)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Handle("/metrics/prometheus", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(s.requirePermission(auth.PermGeofenceRead)).Post("/ws/ticket", s.handleWSTicket)
			r.With(s.requirePermission(auth.PermGeofenceRead)).Get("/constants", s.handleConstants)

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermPermissionRequest))
				r.Post("/initialize", s.handleInitialize)
				r.Post("/permission/request", s.handleRequestPermission)
				r.Get("/permission", s.handleCheckPermission)
			})

			r.Route("/geofences", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermGeofenceRead)).Get("/", s.handleListGeofences)
				r.With(s.requirePermission(auth.PermGeofenceRead)).Get("/count", s.handleCount)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermGeofenceWrite))
					r.Post("/", s.handleAdd)
					r.Post("/batch", s.handleAddAll)
					r.Post("/remove", s.handleRemoveAll)
					r.Delete("/", s.handleClear)
					r.Delete("/{id}", s.handleRemove)
				})
			})

			r.With(s.requirePermission(auth.PermLifecycleControl)).Post("/lifecycle/{event}", s.handleLifecycle)
			r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAuditLogs)

			r.Route("/system", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermSystemAdmin))
				r.Get("/log-level", s.handleGetLogLevel)
				r.Put("/log-level", s.handleSetLogLevel)
			})
		})
	})

	return r
}
