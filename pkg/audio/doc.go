// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Payload, Buffer, Priority and the playback error taxonomy
// Package audio provides the shared types of the evatrad playback engine.
//
// This package defines core types used throughout the library:
//   - Payload: encoded audio as received from the network, with an encoding tag
//   - Buffer: decoded mono PCM as float32 samples in [-1, 1]
//   - Priority: queue ordering class of a playback item
//
// It also defines the sentinel errors every other package wraps, so callers
// can classify failures with errors.Is:
//
//	if errors.Is(err, audio.ErrDeviceUnavailable) {
//	    // degrade to captions only
//	}
package audio
