package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/geofence-relay/internal/bridge"
	"github.com/nerrad567/geofence-relay/internal/geofence"
)

// removeAllRequest is the body of POST /geofences/remove.
type removeAllRequest struct {
	IDs []string `json:"ids"`
}

// operationContext detaches the platform call from the HTTP request so a
// client disconnect never abandons an in-flight operation.
func operationContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// await waits for res up to the operation timeout or until the client leaves.
func await[T any](s *Server, r *http.Request, res *geofence.Result[T]) (T, error) {
	ctx, cancel := context.WithTimeout(r.Context(), s.operationTimeout())
	defer cancel()
	return res.Wait(ctx)
}

// decodeBody decodes a JSON body into v. An empty body leaves v unchanged
// when optional is true.
func decodeBody(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// handleInitialize registers the transition listener and optionally prompts
// for location permission.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var opts bridge.InitOptions
	if err := decodeBody(r, &opts, true); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.geofence.Initialize(r.Context(), opts); err != nil {
		writeGeofenceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRequestPermission(w http.ResponseWriter, r *http.Request) {
	if err := s.geofence.RequestPermission(r.Context()); err != nil {
		writeGeofenceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCheckPermission(w http.ResponseWriter, r *http.Request) {
	granted, err := s.geofence.CheckPermission(r.Context())
	if err != nil {
		writeGeofenceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"granted": granted})
}

// handleAdd registers one region.
func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var opts geofence.Options
	if err := decodeBody(r, &opts, false); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id, err := await(s, r, s.geofence.Add(operationContext(r), opts))
	if err != nil {
		writeGeofenceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// handleAddAll registers a JSON array of regions in one platform call.
func (s *Server) handleAddAll(w http.ResponseWriter, r *http.Request) {
	var opts []geofence.Options
	if err := decodeBody(r, &opts, false); err != nil {
		writeBadRequest(w, "body must be a JSON array of geofences")
		return
	}

	ids, err := await(s, r, s.geofence.AddAll(operationContext(r), opts))
	if err != nil {
		writeGeofenceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ids": ids})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	got, err := await(s, r, s.geofence.Remove(operationContext(r), id))
	if err != nil {
		writeGeofenceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": got})
}

func (s *Server) handleRemoveAll(w http.ResponseWriter, r *http.Request) {
	var req removeAllRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ids, err := await(s, r, s.geofence.RemoveAll(operationContext(r), req.IDs))
	if err != nil {
		writeGeofenceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ids": ids})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if _, err := await(s, r, s.geofence.Clear(operationContext(r))); err != nil {
		writeGeofenceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleCount(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"count": s.geofence.Count()})
}

func (s *Server) handleListGeofences(w http.ResponseWriter, _ *http.Request) {
	ids := s.geofence.IDs()
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids, "count": len(ids)})
}
