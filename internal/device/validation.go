package device

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength    = 100
	maxCapabilities  = 32
	maxCapabilityLen = 64

	// IDPrefix starts every generated device ID.
	IDPrefix = "dev-"
)

// Pre-computed validation sets for O(1) lookups.
var (
	validCategories   map[Category]struct{}
	validStatuses     map[ConnectionStatus]struct{}
	validHealthStatus map[HealthStatus]struct{}
)

func init() {
	validCategories = toSet(AllCategories())
	validStatuses = toSet(AllStatuses())
	validHealthStatus = toSet(AllHealthStatuses())
}

func toSet[T comparable](values []T) map[T]struct{} {
	set := make(map[T]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// ValidateDevice checks a device before it is stored.
// Returns an error describing the first failure found.
//
// MAC addresses are stored as given; catalog devices carry vendor-style
// identifiers that are not hexadecimal. Only manual entry is strict, see
// ParseIdentifier.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: device is nil", ErrInvalidDevice)
	}
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidateCategory(d.Category); err != nil {
		return err
	}
	if err := ValidateStatus(d.Status); err != nil {
		return err
	}
	if d.HealthStatus != "" {
		if _, ok := validHealthStatus[d.HealthStatus]; !ok {
			return fmt.Errorf("%w: unknown health status %q", ErrInvalidDevice, d.HealthStatus)
		}
	}
	if !inPercentRange(d.SignalStrength) {
		return fmt.Errorf("%w: signal_strength %d outside 0-100", ErrInvalidDevice, d.SignalStrength)
	}
	if !inPercentRange(d.SensorAccuracy) {
		return fmt.Errorf("%w: sensor_accuracy %d outside 0-100", ErrInvalidDevice, d.SensorAccuracy)
	}
	if d.BatteryLevel != nil && !inPercentRange(*d.BatteryLevel) {
		return fmt.Errorf("%w: battery_level %d outside 0-100", ErrInvalidDevice, *d.BatteryLevel)
	}
	b := d.Bandwidth
	if b.Upload < 0 || b.Download < 0 || b.Used < 0 || b.Limit < 0 {
		return fmt.Errorf("%w: bandwidth values must not be negative", ErrInvalidDevice)
	}
	if len(d.Capabilities) > maxCapabilities {
		return fmt.Errorf("%w: more than %d capabilities", ErrInvalidDevice, maxCapabilities)
	}
	for _, c := range d.Capabilities {
		if c == "" || len(c) > maxCapabilityLen {
			return fmt.Errorf("%w: capability %q", ErrInvalidDevice, c)
		}
	}
	if d.IPAddress != nil && net.ParseIP(*d.IPAddress) == nil {
		return fmt.Errorf("%w: ip_address %q", ErrInvalidDevice, *d.IPAddress)
	}
	return nil
}

func inPercentRange(v int) bool {
	return v >= 0 && v <= 100
}

// ValidateName checks that a device name is present and not too long.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateCategory checks a category against the fixed set.
func ValidateCategory(c Category) error {
	if _, ok := validCategories[c]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, c)
	}
	return nil
}

// ValidateStatus checks a connection status against the fixed set.
func ValidateStatus(s ConnectionStatus) error {
	if _, ok := validStatuses[s]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return nil
}

// IdentifierKind says how a manual identifier was interpreted.
type IdentifierKind int

// Identifier kinds.
const (
	IdentifierMAC IdentifierKind = iota + 1
	IdentifierIP
)

// ParseIdentifier interprets a manually entered identifier as a MAC address
// (IEEE 802 MAC-48, EUI-48 or EUI-64 forms) or an IPv4/IPv6 address.
// The returned value is normalised: upper-case colon form for MACs,
// canonical text for IPs.
func ParseIdentifier(identifier string) (IdentifierKind, string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return 0, "", fmt.Errorf("%w: identifier cannot be empty", ErrInvalidIdentifier)
	}
	// MAC first: an EUI-64 in colon form is also valid IPv6 text.
	if hw, err := net.ParseMAC(identifier); err == nil {
		return IdentifierMAC, strings.ToUpper(hw.String()), nil
	}
	if ip := net.ParseIP(identifier); ip != nil {
		return IdentifierIP, ip.String(), nil
	}
	return 0, "", fmt.Errorf("%w: %q is neither a MAC nor an IP address", ErrInvalidIdentifier, identifier)
}

// ValidatePolicy checks a manual-add policy value.
func ValidatePolicy(p ManualAddPolicy) error {
	switch p {
	case ManualAddConnected, ManualAddDisconnected:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPolicy, p)
	}
}

// GenerateID creates a new device ID of the form dev-<uuid>.
func GenerateID() string {
	return IDPrefix + uuid.New().String()
}
