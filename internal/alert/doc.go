// Package alert stores alerts raised about devices by external sources.
//
// Alerts arrive over MQTT (avclink/alert/{deviceId}) or the HTTP API and
// are never generated by the connection simulator. They have no expiry:
// an alert changes only when marked read, and disappears only on ClearAll.
package alert
