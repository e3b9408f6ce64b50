// ABOUTME: Mix bus with instantaneous and ramped gain changes
// ABOUTME: Tracks a nominal gain that survives ducking
package mix

import (
	"sync"
	"time"
)

// Bus IDs used by the session
const (
	BusOriginal   = "original"
	BusTranslated = "translated"
	BusPrompt     = "prompt"
)

// Bus is a gain-controlled output path
type Bus struct {
	id string

	mu      sync.Mutex
	gain    float64
	nominal float64
	ramp    *ramp

	now func() time.Time
}

// ramp is a linear gain envelope
type ramp struct {
	from, to float64
	start    time.Time
	duration time.Duration
}

func (r *ramp) at(t time.Time) (float64, bool) {
	elapsed := t.Sub(r.start)
	if elapsed >= r.duration || r.duration <= 0 {
		return r.to, true
	}
	if elapsed < 0 {
		return r.from, false
	}
	frac := float64(elapsed) / float64(r.duration)
	return r.from + (r.to-r.from)*frac, false
}

// NewBus creates a bus with the given nominal gain
func NewBus(id string, gain float64) *Bus {
	gain = ClampGain(gain)
	return &Bus{
		id:      id,
		gain:    gain,
		nominal: gain,
		now:     time.Now,
	}
}

// ID returns the bus name
func (b *Bus) ID() string {
	return b.id
}

// Gain returns the current gain, following any ramp in progress
func (b *Bus) Gain() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentLocked()
}

func (b *Bus) currentLocked() float64 {
	if b.ramp == nil {
		return b.gain
	}
	g, finished := b.ramp.at(b.now())
	if finished {
		b.gain = g
		b.ramp = nil
	}
	return g
}

// Nominal returns the gain Restore returns to
func (b *Bus) Nominal() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nominal
}

// SetGain sets the gain immediately and makes it the new nominal value.
// Any ramp in progress is abandoned.
func (b *Bus) SetGain(value float64) {
	value = ClampGain(value)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ramp = nil
	b.gain = value
	b.nominal = value
}

// RampGain moves the gain linearly from one value to another. The nominal
// gain is not changed.
func (b *Bus) RampGain(from, to float64, duration time.Duration) {
	from, to = ClampGain(from), ClampGain(to)
	b.mu.Lock()
	defer b.mu.Unlock()
	if duration <= 0 {
		b.ramp = nil
		b.gain = to
		return
	}
	b.gain = from
	b.ramp = &ramp{from: from, to: to, start: b.now(), duration: duration}
}

// Duck ramps from the current gain down to level, keeping the nominal gain
func (b *Bus) Duck(level float64, duration time.Duration) {
	b.RampGain(b.Gain(), level, duration)
}

// Restore returns the bus to its nominal gain immediately
func (b *Bus) Restore() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ramp = nil
	b.gain = b.nominal
}

// ClampGain limits a gain to [0, 1]
func ClampGain(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
