package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/avclink-core/internal/alert"
	"github.com/nerrad567/avclink-core/internal/connection"
	"github.com/nerrad567/avclink-core/internal/device"
	"github.com/nerrad567/avclink-core/internal/history"
	"github.com/nerrad567/avclink-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/avclink-core/internal/infrastructure/mqtt"
)

// WebSocket channels.
const (
	ChannelConnectionState  = "connection.state_changed"
	ChannelDeviceDiscovered = "device.discovered"
	ChannelNotification     = "notification"
	ChannelAlertCreated     = "alert.created"
)

// storeTimeout bounds registry and history writes made from simulator
// callbacks, which carry no request context.
const storeTimeout = 5 * time.Second

// Broadcaster pushes an event to dashboards subscribed to channel.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// TelemetryWriter stores monitor samples and lifecycle transitions.
// *influxdb.Client satisfies it.
type TelemetryWriter interface {
	WriteTelemetry(p influxdb.TelemetryPoint)
	WriteConnectionEvent(deviceID, eventType string, at time.Time)
}

// AlertSubscriber is the subscribe half of the MQTT client.
type AlertSubscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger defines the logging interface used by the Manager.
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

// Deps holds the collaborators of a Manager. Registry, Simulator, Alerts,
// History and Settings are required.
type Deps struct {
	Registry  *device.Registry
	Simulator *connection.Simulator
	Alerts    *alert.Service
	History   *history.Service
	Settings  device.SettingsStore

	Hub       Broadcaster
	MQTT      mqtt.Publisher
	Telemetry TelemetryWriter
	Logger    Logger
}

// Manager routes simulator changes to storage and outlets.
type Manager struct {
	registry  *device.Registry
	sim       *connection.Simulator
	alerts    *alert.Service
	history   *history.Service
	settings  device.SettingsStore
	hub       Broadcaster
	publisher mqtt.Publisher
	telemetry TelemetryWriter
	logger    Logger
	topics    mqtt.Topics
}

// New creates a Manager and registers it as the simulator's listener,
// notifier and telemetry sink.
func New(deps Deps) (*Manager, error) {
	switch {
	case deps.Registry == nil:
		return nil, fmt.Errorf("device registry is required")
	case deps.Simulator == nil:
		return nil, fmt.Errorf("simulator is required")
	case deps.Alerts == nil:
		return nil, fmt.Errorf("alert service is required")
	case deps.History == nil:
		return nil, fmt.Errorf("history service is required")
	case deps.Settings == nil:
		return nil, fmt.Errorf("settings store is required")
	}

	m := &Manager{
		registry:  deps.Registry,
		sim:       deps.Simulator,
		alerts:    deps.Alerts,
		history:   deps.History,
		settings:  deps.Settings,
		hub:       deps.Hub,
		publisher: deps.MQTT,
		telemetry: deps.Telemetry,
		logger:    deps.Logger,
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}

	m.sim.AddListener(m.handleEvent)
	m.sim.SetNotifier(m)
	m.sim.SetTelemetrySink(m)
	m.alerts.OnIngest(m.alertCreated)
	return m, nil
}

// SubscribeAlerts ingests alerts published on avclink/alert/{deviceId}.
// Malformed payloads are logged and dropped.
func (m *Manager) SubscribeAlerts(sub AlertSubscriber) error {
	return sub.Subscribe(m.topics.AllAlerts(), 1, func(topic string, payload []byte) error {
		deviceID, ok := mqtt.AlertDeviceID(topic)
		if !ok {
			return nil
		}
		a, err := alert.Decode(deviceID, payload)
		if err != nil {
			m.logger.Warn("dropping malformed alert", "topic", topic, "error", err)
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if _, err := m.alerts.Ingest(ctx, a); err != nil {
			m.logger.Warn("alert rejected", "topic", topic, "error", err)
		}
		return nil
	})
}

// PublishState publishes the current connection snapshot as the retained
// connection state. Called once at startup so late subscribers see it.
func (m *Manager) PublishState() {
	m.publishJSON(m.topics.ConnectionState(), m.sim.Snapshot(), true)
}

// AddManualDevice adds a device from user entry, records the change and
// notifies "Device Added".
//
// A device added in the connected state is handed to the simulator, which
// disconnects whatever held the connected slot before. If the simulator
// refuses it the stored device falls back to disconnected.
func (m *Manager) AddManualDevice(ctx context.Context, name string, category device.Category, identifier string) (*device.Device, error) {
	d, err := m.registry.AddManualDevice(ctx, name, category, identifier)
	if err != nil {
		return nil, err
	}

	m.record(ctx, d.ID, history.EventConfigChange, "Added "+d.Name)
	if d.Status == device.StatusConnected {
		if err := m.sim.Adopt(*d); err != nil {
			m.logger.Warn("manual device not adopted", "id", d.ID, "error", err)
			m.setStatus(ctx, d.ID, device.StatusDisconnected)
			d.Status = device.StatusDisconnected
			m.publishJSON(m.topics.DeviceState(d.ID), d, true)
		}
	} else {
		m.publishJSON(m.topics.DeviceState(d.ID), d, true)
	}
	m.Notify(connection.Notification{
		Title:       "Device Added",
		Description: d.Name + " has been added successfully.",
		Variant:     connection.VariantDefault,
	})
	return d, nil
}

// RemoveDevice deletes a known device and notifies "Device Removed". A
// device that is currently connected or connecting is disconnected first.
func (m *Manager) RemoveDevice(ctx context.Context, id string) error {
	d, err := m.registry.GetDevice(ctx, id)
	if err != nil {
		return err
	}

	snap := m.sim.Snapshot()
	if (snap.ConnectedDevice != nil && snap.ConnectedDevice.ID == id) ||
		(snap.ConnectingDevice != nil && snap.ConnectingDevice.ID == id) {
		m.sim.Disconnect()
	}

	if err := m.registry.RemoveDevice(ctx, id); err != nil {
		return err
	}
	m.record(ctx, id, history.EventConfigChange, "Removed "+d.Name)
	m.publishJSON(m.topics.DeviceState(id), nil, true)
	m.publishJSON(m.topics.DeviceConfig(id), nil, true)
	m.Notify(connection.Notification{
		Title:       "Device Removed",
		Description: "The device has been removed from your list.",
		Variant:     connection.VariantDestructive,
	})
	return nil
}

// Connect starts a connection to the device with the given ID, looked up
// in the known list, then the latest scan results, then the candidate pool.
func (m *Manager) Connect(ctx context.Context, id string) (*connection.Attempt, error) {
	target, err := m.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.sim.Connect(*target)
}

func (m *Manager) resolve(ctx context.Context, id string) (*device.Device, error) {
	d, err := m.registry.GetDevice(ctx, id)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, device.ErrDeviceNotFound) {
		return nil, err
	}

	for _, c := range m.sim.Snapshot().ScannedDevices {
		if c.ID == id {
			return &c, nil
		}
	}
	for _, c := range m.registry.ListCandidates() {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
}

// handleEvent runs on the simulator's dispatch path for every change.
func (m *Manager) handleEvent(ev connection.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	switch ev.Type {
	case connection.EventConnected:
		m.onConnected(ctx, ev.Device)
	case connection.EventDisconnected:
		m.onDisconnected(ctx, ev.Device)
	case connection.EventConnectFailed:
		m.onFailed(ctx, ev.Device)
	case connection.EventDeviceDiscovered:
		m.broadcast(ChannelDeviceDiscovered, ev.Device)
	}

	m.broadcast(ChannelConnectionState, ev)
	if ev.Type != connection.EventTelemetry {
		m.publishJSON(m.topics.ConnectionState(), ev.Snapshot, true)
	}
}

func (m *Manager) onConnected(ctx context.Context, d *device.Device) {
	if d == nil {
		return
	}
	if err := m.registry.SaveDevice(ctx, d); err != nil {
		m.logger.Error("saving connected device", "id", d.ID, "error", err)
	}
	m.record(ctx, d.ID, history.EventConnect, "Connected to "+d.Name)
	m.publishJSON(m.topics.DeviceState(d.ID), d, true)
	if m.telemetry != nil {
		m.telemetry.WriteConnectionEvent(d.ID, string(history.EventConnect), d.LastConnected)
	}
}

func (m *Manager) onDisconnected(ctx context.Context, d *device.Device) {
	if d == nil {
		return
	}
	m.setStatus(ctx, d.ID, device.StatusDisconnected)
	m.record(ctx, d.ID, history.EventDisconnect, "Disconnected from "+d.Name)
	m.publishJSON(m.topics.DeviceState(d.ID), d, true)
	if m.telemetry != nil {
		m.telemetry.WriteConnectionEvent(d.ID, string(history.EventDisconnect), time.Now())
	}
}

func (m *Manager) onFailed(ctx context.Context, d *device.Device) {
	if d == nil {
		return
	}
	m.setStatus(ctx, d.ID, device.StatusError)
	m.record(ctx, d.ID, history.EventError, "Could not connect to "+d.Name)
	if m.telemetry != nil {
		m.telemetry.WriteConnectionEvent(d.ID, string(history.EventError), time.Now())
	}
}

// setStatus updates a known device. Scan candidates that were never
// connected are not in the known list, so not-found is expected.
func (m *Manager) setStatus(ctx context.Context, id string, status device.ConnectionStatus) {
	err := m.registry.SetConnectionStatus(ctx, id, status)
	switch {
	case err == nil:
	case errors.Is(err, device.ErrDeviceNotFound):
		m.logger.Debug("status change for unknown device", "id", id, "status", status)
	default:
		m.logger.Error("updating device status", "id", id, "status", status, "error", err)
	}
}

func (m *Manager) record(ctx context.Context, deviceID string, typ history.EventType, details string) {
	if _, err := m.history.Record(ctx, deviceID, typ, details); err != nil {
		m.logger.Error("recording connection event", "device_id", deviceID, "type", typ, "error", err)
	}
}

// Notify implements connection.Notifier.
func (m *Manager) Notify(n connection.Notification) {
	m.logger.Debug("notification", "title", n.Title, "variant", n.Variant)
	m.broadcast(ChannelNotification, n)
	m.publishJSON(m.topics.Notification(), n, false)
}

// RecordTelemetry implements connection.TelemetrySink.
func (m *Manager) RecordTelemetry(t connection.Telemetry) {
	if m.telemetry != nil {
		m.telemetry.WriteTelemetry(influxdb.TelemetryPoint{
			DeviceID:       t.DeviceID,
			SignalStrength: t.SignalStrength,
			BatteryLevel:   t.BatteryLevel,
			LatencyMs:      t.LatencyMs,
			Timestamp:      t.Timestamp,
		})
	}
	m.publishJSON(m.topics.DeviceTelemetry(t.DeviceID), t, false)
}

func (m *Manager) alertCreated(a alert.Alert) {
	m.broadcast(ChannelAlertCreated, a)
}

func (m *Manager) broadcast(channel string, payload any) {
	if m.hub != nil {
		m.hub.Broadcast(channel, payload)
	}
}

// publishJSON publishes v at QoS 0. A nil v clears a retained topic.
func (m *Manager) publishJSON(topic string, v any, retained bool) {
	if m.publisher == nil {
		return
	}
	var payload []byte
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			m.logger.Error("encoding mqtt payload", "topic", topic, "error", err)
			return
		}
		payload = b
	}

	if err := m.publisher.Publish(topic, payload, 0, retained); err != nil {
		if errors.Is(err, mqtt.ErrCircuitOpen) {
			m.logger.Debug("mqtt publish skipped", "topic", topic, "error", err)
			return
		}
		m.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
	}
}
