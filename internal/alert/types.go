package alert

import "time"

// Type classifies an alert.
type Type string

// Alert types.
const (
	TypeWarning Type = "warning"
	TypeError   Type = "error"
	TypeInfo    Type = "info"
)

// Alert is a message about one device.
type Alert struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}
