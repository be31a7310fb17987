package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every AVC Link topic.
const TopicPrefix = "avclink"

// Topics provides builders for AVC Link MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DeviceTelemetry("avc-beryl-01")
//	// Returns: "avclink/device/avc-beryl-01/telemetry"
type Topics struct{}

// SystemStatus carries the online/offline status of this daemon (retained,
// also the LWT topic).
//
// Example: avclink/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// ConnectionState carries the simulator snapshot after every state change
// (retained).
//
// Example: avclink/connection/state
func (Topics) ConnectionState() string {
	return TopicPrefix + "/connection/state"
}

// DeviceState carries one device's record whenever its status changes
// (retained).
//
// Example: avclink/device/dev-001/state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefix, deviceID)
}

// DeviceConfig carries a device's tuning settings after every save or
// reset (retained).
//
// Example: avclink/device/dev-001/config
func (Topics) DeviceConfig(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/config", TopicPrefix, deviceID)
}

// DeviceTelemetry carries monitor samples for the connected device.
//
// Example: avclink/device/avc-beryl-01/telemetry
func (Topics) DeviceTelemetry(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/telemetry", TopicPrefix, deviceID)
}

// Notification carries connect/disconnect/failure notifications.
//
// Example: avclink/notification
func (Topics) Notification() string {
	return TopicPrefix + "/notification"
}

// Alert is where external sources publish alerts about a device.
//
// Example: avclink/alert/dev-006
func (Topics) Alert(deviceID string) string {
	return fmt.Sprintf("%s/alert/%s", TopicPrefix, deviceID)
}

// AllAlerts matches alerts for every device.
//
// Pattern: avclink/alert/+
func (Topics) AllAlerts() string {
	return TopicPrefix + "/alert/+"
}

// AllDeviceTelemetry matches telemetry for every device.
//
// Pattern: avclink/device/+/telemetry
func (Topics) AllDeviceTelemetry() string {
	return TopicPrefix + "/device/+/telemetry"
}

// AllTopics matches all AVC Link traffic.
//
// Pattern: avclink/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// AlertDeviceID extracts the device ID from an alert topic.
// Returns false if topic is not of the form avclink/alert/{deviceId}.
func AlertDeviceID(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefix+"/alert/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
