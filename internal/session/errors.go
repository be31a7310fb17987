package session

import "errors"

// ErrUnknownDevice is returned by Connect when the ID is neither a known
// device nor a scan candidate.
var ErrUnknownDevice = errors.New("session: unknown device")
