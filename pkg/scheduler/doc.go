// ABOUTME: Synchronization scheduler for paired conversation turns
// ABOUTME: Offsets original and translated voice using production timestamps
// Package scheduler dispatches a turn's original voice and its translation
// to their channels with a small relative offset, so the original is heard
// slightly before the translation instead of on top of it.
//
// Given a production timestamp T:
//
//	elapsed     = now - T
//	translation = max(0, gap - elapsed)
//	original    = max(0, translation - lead)
//
// Time already spent in transit is subtracted so a late message is not
// delayed twice. Without a timestamp both voices start immediately.
package scheduler
