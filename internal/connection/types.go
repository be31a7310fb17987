package connection

import (
	"time"

	"github.com/nerrad567/avclink-core/internal/device"
)

// Telemetry bounds and seeds.
const (
	SignalMin = 0
	SignalMax = 100

	// BatteryMin is the floor for battery drain.
	BatteryMin = 0

	// LatencyMinMs and LatencyMaxMs bound the latency drawn on each tick
	// (inclusive).
	LatencyMinMs = 10
	LatencyMaxMs = 24

	// HandshakeLatencyMs is the latency reported right after pairing.
	HandshakeLatencyMs = 12

	// FallbackSignal and FallbackBattery seed telemetry for a device that
	// carries no nominal value.
	FallbackSignal  = 85
	FallbackBattery = 80

	// maxSignalDelta bounds the per-tick signal change in either direction.
	maxSignalDelta = 2

	// batteryDrainChance is the per-tick probability of losing 1%.
	batteryDrainChance = 0.05
)

// State is the lifecycle state derived from the simulator's working set.
type State string

// Lifecycle states.
const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
)

// Snapshot is the observable state of a Simulator at one instant.
// Devices in it are copies and may be modified by the caller.
type Snapshot struct {
	State            State           `json:"state"`
	Scanning         bool            `json:"is_scanning"`
	Connecting       bool            `json:"is_connecting"`
	Connected        bool            `json:"is_connected"`
	ConnectingDevice *device.Device  `json:"connecting_device"`
	ConnectedDevice  *device.Device  `json:"connected_device"`
	ScannedDevices   []device.Device `json:"scanned_devices"`
	SignalStrength   int             `json:"signal_strength"`
	BatteryLevel     int             `json:"battery_level"`
	LatencyMs        int             `json:"latency_ms"`
}

// EventType identifies a state change.
type EventType string

// Event types delivered to listeners.
const (
	EventScanStarted      EventType = "scan_started"
	EventScanStopped      EventType = "scan_stopped"
	EventDeviceDiscovered EventType = "device_discovered"
	EventConnecting       EventType = "connecting"
	EventConnected        EventType = "connected"
	EventConnectFailed    EventType = "connect_failed"
	EventConnectCanceled  EventType = "connect_canceled"
	EventDisconnected     EventType = "disconnected"
	EventTelemetry        EventType = "telemetry"

	// EventSnapshot is never emitted by a Simulator. It labels a replay of
	// the current state for observers that attach late.
	EventSnapshot EventType = "snapshot"
)

// Event describes one state change. Device is the device the change is
// about, when there is one.
type Event struct {
	Type     EventType      `json:"type"`
	Snapshot Snapshot       `json:"snapshot"`
	Device   *device.Device `json:"device,omitempty"`
}

// Listener is called for every state change, in order. Listeners run
// synchronously after the change is applied. They may read Snapshot but
// must not issue commands on the Simulator.
type Listener func(Event)

// Notification variants.
const (
	VariantDefault     = "default"
	VariantDestructive = "destructive"
)

// Notification is a human-readable message for a toast presenter.
type Notification struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Variant     string `json:"variant"`
}

// Notifier receives fire-and-forget notifications on connect, disconnect
// and failure.
type Notifier interface {
	Notify(n Notification)
}

// Telemetry is one monitor sample for the connected device.
type Telemetry struct {
	DeviceID       string    `json:"device_id"`
	SignalStrength int       `json:"signal_strength"`
	BatteryLevel   int       `json:"battery_level"`
	LatencyMs      int       `json:"latency_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// TelemetrySink receives every monitor sample.
type TelemetrySink interface {
	RecordTelemetry(t Telemetry)
}

// CandidateSource supplies the devices a scan can discover.
// *device.Registry satisfies it.
type CandidateSource interface {
	ListCandidates() []device.Device
}

// Logger defines the logging interface used by the Simulator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
