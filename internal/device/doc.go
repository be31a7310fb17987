// Package device provides the device registry for AVC Link Core.
//
// The registry owns two lists:
//
//   - the candidate pool: the fixed set of AVC peripherals a simulated scan
//     can discover (see Candidates)
//   - the known list: devices the user has added, seeded or connected,
//     cached in memory over a Repository (SQLite in production)
//
// Connection state of known devices changes only through the connection
// simulator; the registry records the outcome via SaveDevice and
// SetConnectionStatus.
//
// Manual entry accepts a MAC or IP address. Whether a manually added device
// starts connected or disconnected is a policy (ManualAddPolicy) chosen by
// configuration.
//
// Usage:
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(logger)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	d, err := registry.AddManualDevice(ctx, "Desk Mask", device.CategoryAVCLite, "AA:BB:CC:DD:EE:10")
package device
