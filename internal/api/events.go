package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/avclink-core/internal/history"
)

// handleListEvents returns connection history, newest first.
//
// Query parameters:
//   - device_id: one device
//   - type: connect, disconnect, error or config_change
//   - since: RFC 3339 lower bound
//   - limit, offset: pagination (default 50, max 500)
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := history.Filter{
		DeviceID: q.Get("device_id"),
		Type:     history.EventType(q.Get("type")),
	}

	switch filter.Type {
	case "", history.EventConnect, history.EventDisconnect, history.EventError, history.EventConfigChange:
	default:
		writeBadRequest(w, "unknown event type: "+string(filter.Type))
		return
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = t
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	result, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, err, "failed to list connection events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
