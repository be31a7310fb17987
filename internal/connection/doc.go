// Package connection simulates the AVC device connection lifecycle.
//
// A Simulator owns the transient working set of the dashboard: the scan
// state and discovered devices, the pending connection attempt, and the
// single connected device with its live telemetry.
//
// Lifecycle:
//
//	Idle -> Scanning -> Connecting -> Connected -> Idle
//
// Every delayed transition (scan discovery, scan ceiling, pairing handshake,
// monitor tick) runs on a cancellable timer owned by the Simulator. StopScan,
// Connect, Disconnect and Close cancel the work they supersede, and a late
// callback from a superseded generation is ignored.
//
// At most one device is connected at a time. Connecting while connected
// tears the current connection down first.
//
// Telemetry is a bounded random walk driven by a seeded generator
// (Options.Seed), so a fixed seed gives a repeatable run.
//
// Example usage:
//
//	sim := connection.New(registry, connection.DefaultOptions())
//	sim.SetLogger(logger)
//	sim.AddListener(func(ev connection.Event) { hub.Broadcast(...) })
//	defer sim.Close()
//
//	attempt, err := sim.Connect(candidate)
//	if err != nil {
//	    return err
//	}
//	if err := attempt.Wait(ctx); err != nil {
//	    // ErrCanceled, ErrConnectionFailed or ctx.Err()
//	}
package connection
