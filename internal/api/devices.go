package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/avclink-core/internal/connection"
	"github.com/nerrad567/avclink-core/internal/device"
)

// maxConnectWait caps how long POST /devices/{id}/connect?wait=true blocks.
const maxConnectWait = 30 * time.Second

// Connection attempt outcomes reported by the connect endpoint.
const (
	OutcomePending   = "pending"
	OutcomeConnected = "connected"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
)

// createDeviceRequest is the body of POST /devices.
type createDeviceRequest struct {
	Name       string          `json:"name"`
	Category   device.Category `json:"category"`
	Identifier string          `json:"identifier"`
}

// connectResponse describes a connection attempt.
type connectResponse struct {
	DeviceID string `json:"device_id"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
}

// handleListDevices returns the known device list, newest first.
//
// Query parameters:
//   - q: case-insensitive substring of name or category
//   - category: one category, or "all"
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	devices, err := s.registry.Filter(r.Context(), query.Get("q"), device.Category(query.Get("category")))
	if err != nil {
		s.writeDomainError(w, err, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single known device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.registry.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice adds a device from manual entry.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.session.AddManualDevice(r.Context(), req.Name, req.Category, req.Identifier)
	if err != nil {
		s.writeDomainError(w, err, "failed to add device")
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}

// handleDeleteDevice removes a known device, disconnecting it first.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.session.RemoveDevice(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err, "failed to remove device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceStats returns connected/disconnected counts and mean accuracy.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.GetStats())
}

// handleListCandidates returns the devices a scan can discover.
func (s *Server) handleListCandidates(w http.ResponseWriter, _ *http.Request) {
	candidates := s.registry.ListCandidates()
	writeJSON(w, http.StatusOK, map[string]any{"devices": candidates, "count": len(candidates)})
}

// handleConnectDevice starts a connection attempt and returns 202.
// With ?wait=true it blocks until the attempt resolves and returns 200 with
// the outcome, or 504 if the request deadline passes first.
func (s *Server) handleConnectDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")) //nolint:errcheck // absent or malformed means no wait

	attempt, err := s.session.Connect(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err, "failed to start connection")
		return
	}

	if !wait {
		writeJSON(w, http.StatusAccepted, connectResponse{DeviceID: id, Outcome: OutcomePending})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), maxConnectWait)
	defer cancel()

	resp, resolved := awaitOutcome(ctx, id, attempt)
	if !resolved {
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "connection still pending")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// awaitOutcome waits for attempt or ctx. An attempt that has resolved by
// the time ctx ends still reports its outcome.
func awaitOutcome(ctx context.Context, id string, attempt *connection.Attempt) (connectResponse, bool) {
	select {
	case <-attempt.Done():
	case <-ctx.Done():
	}
	select {
	case <-attempt.Done():
		return outcomeOf(id, attempt.Err()), true
	default:
		return connectResponse{DeviceID: id, Outcome: OutcomePending}, false
	}
}

func outcomeOf(id string, err error) connectResponse {
	resp := connectResponse{DeviceID: id, Outcome: OutcomeConnected}
	switch {
	case err == nil:
	case errors.Is(err, connection.ErrConnectionFailed):
		resp.Outcome, resp.Error = OutcomeFailed, err.Error()
	default:
		resp.Outcome, resp.Error = OutcomeCanceled, err.Error()
	}
	return resp
}
