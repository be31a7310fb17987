// Package mqtt connects AVC Link Core to an MQTT broker.
//
// The broker is an optional side channel next to the HTTP/WebSocket API:
//
//	avclink/system/status             online/offline (retained, LWT)
//	avclink/connection/state          simulator snapshot (retained)
//	avclink/device/{id}/state         device record on status change (retained)
//	avclink/device/{id}/telemetry     monitor samples
//	avclink/notification              connect/disconnect/failure notifications
//	avclink/alert/{deviceId}          inbound alerts from external sources
//
// Client wraps paho with auto-reconnect, subscription restore and handler
// panic recovery. BreakerPublisher adds a circuit breaker for high-rate
// publishing.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllAlerts(), 1, handleAlert)
//	telemetry := mqtt.NewBreakerPublisher(client, mqtt.BreakerConfig{}, logger)
package mqtt
