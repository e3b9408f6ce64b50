// ABOUTME: Serialized per-bus playback channel
// ABOUTME: Priority queue plus a single play loop that never overlaps items
// Package playback owns the queue for one mix bus and plays its items one at
// a time.
//
// Items are ordered by priority (high, normal, low) and then by arrival. A
// single goroutine pops an item, waits out its start delay, decodes it
// (consulting the decode cache), resamples it to the device rate and plays
// it through the bus gain. Completion is the first of the device's done
// signal and a fallback timer of duration plus a grace period.
//
//	ch := playback.New(playback.Config{Name: "translated", Bus: bus, Output: out})
//	res := ch.Enqueue(playback.Item{Payload: p, Priority: audio.PriorityNormal})
//	err := res.Wait(ctx)
//
// Every Enqueue returns a Result that completes exactly once: nil when the
// item played, audio.ErrPreempted when it was canceled or flushed, or the
// decode or device error that dropped it.
package playback
