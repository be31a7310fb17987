// Package api implements the HTTP REST API and WebSocket server for AVC
// Link Core.
//
// It exposes the known device list, the scan candidate pool, the
// connection simulator, alerts and connection history to dashboards, and
// pushes live changes over a WebSocket hub on four channels:
// connection.state_changed, device.discovered, notification and
// alert.created.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Errors are returned as {status, code, message} JSON. Package sentinel
// errors map to 400, 404, 409 or 503; everything else is a logged 500.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
