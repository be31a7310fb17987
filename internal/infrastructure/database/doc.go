// Package database provides the SQLite store behind AVC Link Core.
//
// The store holds the known device list, alerts and connection events.
// By default it is opened in memory (path ":memory:"), so nothing survives
// a restart; pointing database.path at a file keeps the same schema on disk.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are embedded by the top-level migrations package and follow
// the YYYYMMDD_HHMMSS_name.up.sql / .down.sql naming. All queries use
// parameterised statements.
package database
