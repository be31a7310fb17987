package device

import "errors"

// Domain errors for the device package. Check with errors.Is.
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when inserting a device whose ID is taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidCategory is returned for an unknown category.
	ErrInvalidCategory = errors.New("device: invalid category")

	// ErrInvalidStatus is returned for an unknown connection status.
	ErrInvalidStatus = errors.New("device: invalid status")

	// ErrInvalidIdentifier is returned when a manual identifier is neither
	// a MAC address nor an IP address.
	ErrInvalidIdentifier = errors.New("device: invalid identifier")

	// ErrInvalidSettings is returned when a tuning value is out of range.
	ErrInvalidSettings = errors.New("device: invalid settings")

	// ErrSettingsNotFound is returned when a device has no saved settings.
	ErrSettingsNotFound = errors.New("device: settings not found")

	// ErrInvalidPolicy is returned for an unknown manual-add policy.
	ErrInvalidPolicy = errors.New("device: invalid manual-add policy")
)
