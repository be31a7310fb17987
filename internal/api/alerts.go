package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/avclink-core/internal/alert"
)

// handleListAlerts returns alerts newest first with the unread count.
// ?unread=true restricts the list to unread alerts.
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread")) //nolint:errcheck // absent means all

	alerts, err := s.alerts.List(ctx, unreadOnly)
	if err != nil {
		s.writeDomainError(w, err, "failed to list alerts")
		return
	}
	unread, err := s.alerts.UnreadCount(ctx)
	if err != nil {
		s.writeDomainError(w, err, "failed to count alerts")
		return
	}
	if alerts == nil {
		alerts = []alert.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts), "unread": unread})
}

// handleCreateAlert ingests an alert from an external source.
func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var a alert.Alert
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	stored, err := s.alerts.Ingest(r.Context(), a)
	if err != nil {
		s.writeDomainError(w, err, "failed to store alert")
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// handleMarkAlertRead marks one alert read.
func (s *Server) handleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	if err := s.alerts.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err, "failed to mark alert read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClearAlerts deletes every alert.
func (s *Server) handleClearAlerts(w http.ResponseWriter, r *http.Request) {
	n, err := s.alerts.ClearAll(r.Context())
	if err != nil {
		s.writeDomainError(w, err, "failed to clear alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}
