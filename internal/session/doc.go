// Package session ties the connection simulator to the rest of AVC Link.
//
// A Manager observes the simulator and fans each change out:
//
//   - connection outcomes are merged into the known device list
//   - connect, disconnect and failure are appended to connection history
//   - every change is broadcast to WebSocket dashboards
//   - state, telemetry and notifications are published over MQTT
//   - monitor samples are written to InfluxDB
//
// It also owns the user operations that need those side effects: manual
// device entry, removal and connecting by ID. Alerts arriving on
// avclink/alert/{deviceId} are decoded and ingested here.
//
// Every outlet except the registry and history is optional; a nil
// broadcaster, publisher or telemetry writer is skipped.
package session
