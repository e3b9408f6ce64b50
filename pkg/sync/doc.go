// ABOUTME: Clock synchronization package
// ABOUTME: Maps server production timestamps into local time
// Package sync estimates the offset between the translation server's clock
// and the local clock.
//
// Uses NTP-style round-trip measurement over time-sync messages. Until the
// first good sample arrives, server and local clocks are assumed equal.
//
// Example:
//
//	clock := sync.NewClockSync()
//	clock.ProcessSyncResponse(t1, t2, t3, t4)
//	producedAt := clock.ServerToLocal(msg.Timestamp)
package sync
