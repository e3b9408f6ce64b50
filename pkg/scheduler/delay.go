// ABOUTME: Start offset arithmetic for paired turns
// ABOUTME: Never returns a negative delay
package scheduler

import "time"

// Delays holds the start offsets for one turn
type Delays struct {
	Original    time.Duration
	Translation time.Duration
}

// ComputeDelays returns the remaining offsets once elapsed transit time is
// accounted for. A negative elapsed (timestamp from the future) counts as
// zero.
func ComputeDelays(elapsed, gap, lead time.Duration) Delays {
	if elapsed < 0 {
		elapsed = 0
	}
	translation := gap - elapsed
	if translation < 0 {
		translation = 0
	}
	original := translation - lead
	if original < 0 {
		original = 0
	}
	return Delays{Original: original, Translation: translation}
}
