package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/avclink-core/internal/device"
)

// handleGetDeviceConfig returns a device's tuning, defaults included.
func (s *Server) handleGetDeviceConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := s.session.DeviceSettings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get device config")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleSaveDeviceConfig replaces a device's tuning. The body is a full
// settings object; the device ID comes from the path.
func (s *Server) handleSaveDeviceConfig(w http.ResponseWriter, r *http.Request) {
	var req device.Settings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	settings, err := s.session.SaveDeviceSettings(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.writeDomainError(w, err, "failed to save device config")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleResetDeviceConfig reverts a device to factory tuning.
func (s *Server) handleResetDeviceConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := s.session.ResetDeviceSettings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to reset device config")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
