package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by AVC Link.
const (
	MeasurementTelemetry  = "device_telemetry"
	MeasurementConnection = "connection_events"
)

// TelemetryPoint is one sample from the connection monitor.
type TelemetryPoint struct {
	DeviceID       string
	SignalStrength int
	BatteryLevel   int
	LatencyMs      int
	Timestamp      time.Time
}

// WriteTelemetry queues a telemetry sample, tagged by device. Non-blocking;
// dropped silently when the client is not connected.
func (c *Client) WriteTelemetry(p TelemetryPoint) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(telemetryPoint(p))
}

// WriteConnectionEvent records a lifecycle transition (connect, disconnect,
// error) as a counter point so dashboards can chart session churn.
func (c *Client) WriteConnectionEvent(deviceID, eventType string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(connectionPoint(deviceID, eventType, at))
}

func telemetryPoint(p TelemetryPoint) *write.Point {
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(
		MeasurementTelemetry,
		map[string]string{"device_id": p.DeviceID},
		map[string]any{
			"signal_strength": p.SignalStrength,
			"battery_level":   p.BatteryLevel,
			"latency_ms":      p.LatencyMs,
		},
		ts,
	)
}

func connectionPoint(deviceID, eventType string, at time.Time) *write.Point {
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(
		MeasurementConnection,
		map[string]string{"device_id": deviceID, "event": eventType},
		map[string]any{"count": 1},
		at,
	)
}
