// ABOUTME: Gain-controlled mix buses
// ABOUTME: One bus per voice role with set, ramp, duck and restore
// Package mix provides named gain stages that playback channels render
// through. The output device mixes voices; a Bus only scales them.
//
// Gains are clamped to [0, 1]. A bus remembers its nominal gain so that a
// duck (fade to silence on stop) can always be undone:
//
//	bus := mix.NewBus("translated", 0.9)
//	bus.Duck(0, 80*time.Millisecond)
//	...
//	bus.Restore()
package mix
