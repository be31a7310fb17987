// Package history records the connection history of devices.
//
// Every connect, disconnect, failure and configuration change produces a
// ConnectionEvent in the connection_events table. Events are append-only;
// a Pruner removes those older than the retention window on a cron
// schedule.
package history
