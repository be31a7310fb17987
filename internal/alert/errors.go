package alert

import "errors"

// Domain-specific errors for alert operations.
var (
	// ErrAlertNotFound is returned when an alert ID does not exist.
	ErrAlertNotFound = errors.New("alert: not found")

	// ErrInvalidAlert is returned when an alert fails validation.
	ErrInvalidAlert = errors.New("alert: invalid alert")
)
