package device

import (
	"slices"
	"time"
)

// Device is a peripheral known to the dashboard, either discovered by a
// scan, taken from the demo catalog, or entered manually.
// This matches the devices table in migrations/20260301_090000_devices.up.sql.
type Device struct {
	// Identity
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category Category `json:"category"`

	Status ConnectionStatus `json:"status"`

	// Telemetry
	SignalStrength int       `json:"signal_strength"`
	SensorAccuracy int       `json:"sensor_accuracy"`
	BatteryLevel   *int      `json:"battery_level,omitempty"`
	Bandwidth      Bandwidth `json:"bandwidth"`

	// Metadata
	MACAddress      string       `json:"mac_address"`
	IPAddress       *string      `json:"ip_address,omitempty"`
	Manufacturer    *string      `json:"manufacturer,omitempty"`
	Model           *string      `json:"model,omitempty"`
	FirmwareVersion *string      `json:"firmware_version,omitempty"`
	Capabilities    []string     `json:"capabilities"`
	LastConnected   time.Time    `json:"last_connected"`
	HealthStatus    HealthStatus `json:"health_status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Bandwidth is the usage quad shown on device cards.
type Bandwidth struct {
	Upload   float64 `json:"upload"`   // Mbps
	Download float64 `json:"download"` // Mbps
	Used     float64 `json:"used"`     // MB
	Limit    float64 `json:"limit"`    // MB
}

// DeepCopy returns an independent copy; pointer and slice fields are cloned
// so cached devices cannot be mutated through returned values.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	cp.BatteryLevel = clonePtr(d.BatteryLevel)
	cp.IPAddress = clonePtr(d.IPAddress)
	cp.Manufacturer = clonePtr(d.Manufacturer)
	cp.Model = clonePtr(d.Model)
	cp.FirmwareVersion = clonePtr(d.FirmwareVersion)
	cp.Capabilities = slices.Clone(d.Capabilities)
	return &cp
}

// Battery returns the battery level, or fallback when the device reports none.
func (d *Device) Battery(fallback int) int {
	if d.BatteryLevel == nil {
		return fallback
	}
	return *d.BatteryLevel
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v. Handy for the optional fields of Device.
func Ptr[T any](v T) *T {
	return &v
}

// Category tags a device with its kind.
type Category string

// Device categories.
const (
	CategoryBluetooth  Category = "bluetooth"
	CategoryWiFi       Category = "wifi"
	CategoryIoT        Category = "iot"
	CategoryMobile     Category = "mobile"
	CategoryPeripheral Category = "peripheral"
	CategorySpeaker    Category = "speaker"
	CategoryWearable   Category = "wearable"
	CategoryAVCMask    Category = "avc-mask"
	CategoryAVCPro     Category = "avc-pro"
	CategoryAVCLite    Category = "avc-lite"
)

// CategoryAll is the filter value matching every category.
const CategoryAll Category = "all"

// AllCategories returns every valid category.
func AllCategories() []Category {
	return []Category{
		CategoryBluetooth,
		CategoryWiFi,
		CategoryIoT,
		CategoryMobile,
		CategoryPeripheral,
		CategorySpeaker,
		CategoryWearable,
		CategoryAVCMask,
		CategoryAVCPro,
		CategoryAVCLite,
	}
}

// ConnectionStatus is the connection state of a device.
type ConnectionStatus string

// Connection states.
const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusError        ConnectionStatus = "error"
)

// AllStatuses returns every valid connection status.
func AllStatuses() []ConnectionStatus {
	return []ConnectionStatus{StatusConnected, StatusDisconnected, StatusConnecting, StatusError}
}

// HealthStatus grades overall device health.
type HealthStatus string

// Health grades, best first.
const (
	HealthExcellent HealthStatus = "excellent"
	HealthGood      HealthStatus = "good"
	HealthFair      HealthStatus = "fair"
	HealthPoor      HealthStatus = "poor"
)

// AllHealthStatuses returns every valid health grade.
func AllHealthStatuses() []HealthStatus {
	return []HealthStatus{HealthExcellent, HealthGood, HealthFair, HealthPoor}
}

// ManualAddPolicy selects the state of manually entered devices.
type ManualAddPolicy string

// Manual-add policies. Connected mirrors the dashboard quick-add form;
// disconnected mirrors the add-device dialog.
const (
	ManualAddConnected    ManualAddPolicy = "connected"
	ManualAddDisconnected ManualAddPolicy = "disconnected"
)

// Stats summarises the known device list.
type Stats struct {
	Total           int `json:"total"`
	Connected       int `json:"connected"`
	Disconnected    int `json:"disconnected"`
	AverageAccuracy int `json:"average_accuracy"`
}
