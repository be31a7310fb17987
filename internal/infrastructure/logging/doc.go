// Package logging provides structured logging for AVC Link Core.
//
// It wraps log/slog so every component logs with the same handler, level
// and default fields (service, version).
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "/var/log/avclink/core.log"
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("scan started", "candidates", 4)
//
// Device identifiers (MAC and IP addresses) may be logged; MQTT and
// InfluxDB credentials must never be.
package logging
