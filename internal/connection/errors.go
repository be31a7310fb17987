package connection

import "errors"

// Domain-specific errors for the connection simulator.
var (
	// ErrCanceled is the outcome of an attempt superseded by Disconnect,
	// another Connect, Adopt, or Attempt.Cancel.
	ErrCanceled = errors.New("connection: attempt canceled")

	// ErrConnectionFailed is the outcome of a handshake that failed
	// (see Options.FailureRate).
	ErrConnectionFailed = errors.New("connection: handshake failed")

	// ErrClosed is returned once the simulator has been closed.
	ErrClosed = errors.New("connection: simulator closed")

	// ErrInvalidTarget is returned when Connect is given a device without an ID.
	ErrInvalidTarget = errors.New("connection: target device has no id")
)
