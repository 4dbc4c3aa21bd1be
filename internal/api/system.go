package api

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/geofence-relay/internal/dispatch"
	"github.com/nerrad567/geofence-relay/internal/infrastructure/logging"
)

// healthCheckTimeout bounds each dependency probe.
const healthCheckTimeout = 2 * time.Second

// handleHealth probes every registered dependency.
// The response is 200 when all pass and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	checks := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.health[name](ctx)
		cancel()
		if err != nil {
			status = "degraded"
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}

func (s *Server) handleConstants(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.geofence.Constants())
}

// handleLifecycle applies resume, pause or destroy to the dispatcher.
func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	event, err := dispatch.ParseLifecycleEvent(chi.URLParam(r, "event"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := s.geofence.Lifecycle(event); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	s.logger.Info("lifecycle event applied", "event", event, "state", s.geofence.State())
	w.WriteHeader(http.StatusNoContent)
}

type logLevelBody struct {
	Level string `json:"level"`
}

func (s *Server) handleGetLogLevel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, logLevelBody{Level: strings.ToLower(s.logger.Level().String())})
}

// handleSetLogLevel changes the process-wide log level until restart.
func (s *Server) handleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var body logLevelBody
	if err := decodeBody(r, &body, false); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	level, err := logging.ParseLevel(body.Level)
	if err != nil || body.Level == "" {
		writeBadRequest(w, "level must be one of debug, info, warn, error")
		return
	}

	prev := s.logger.Level()
	s.logger.SetLevel(level)
	subject := ""
	if claims := claimsFromContext(r.Context()); claims != nil {
		subject = claims.Subject
	}
	s.logger.Warn("log level changed", "from", prev.String(), "to", level.String(), "subject", subject)
	s.handleGetLogLevel(w, r)
}
