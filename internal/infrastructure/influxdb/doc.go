// Package influxdb writes AVC Link telemetry to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every monitor tick of
// a connected device becomes one device_telemetry point tagged by device_id
// with signal_strength, battery_level and latency_ms fields. Lifecycle
// transitions are written to connection_events.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTelemetry(influxdb.TelemetryPoint{
//	    DeviceID:       "avc-beryl-01",
//	    SignalStrength: 86,
//	    BatteryLevel:   80,
//	    LatencyMs:      14,
//	})
//
// Writes are non-blocking and batched per the batch_size and flush_interval
// settings. Async failures reach the SetOnError callback.
package influxdb
