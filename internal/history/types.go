package history

import (
	"errors"
	"time"
)

// EventType classifies a connection event.
type EventType string

// Connection event types.
const (
	EventConnect      EventType = "connect"
	EventDisconnect   EventType = "disconnect"
	EventError        EventType = "error"
	EventConfigChange EventType = "config_change"
)

// ErrInvalidEvent is returned when an event fails validation.
var ErrInvalidEvent = errors.New("history: invalid event")

// ConnectionEvent is one entry in a device's connection history.
type ConnectionEvent struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}

// Filter controls which events List returns.
type Filter struct {
	DeviceID string    // optional: one device
	Type     EventType // optional: one event type
	Since    time.Time // optional: events at or after this time
	Limit    int       // default 50, max 500
	Offset   int       // pagination offset
}

// ListResult is one page of events.
type ListResult struct {
	Events []ConnectionEvent `json:"events"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}
