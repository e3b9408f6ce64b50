// ABOUTME: Tests for mix buses
// ABOUTME: Covers clamping, ramps, duck/restore and the gain reader
package mix

import (
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"

	"github.com/Evatrad/evatrad-go/pkg/audio"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBus(gain float64) (*Bus, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := NewBus("test", gain)
	b.now = clock.now
	return b, clock
}

func TestClampGain(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.3, 0.3},
		{1, 1},
		{1.7, 1},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := ClampGain(tt.in); got != tt.want {
			t.Errorf("ClampGain(%v): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestSetGainIdempotent(t *testing.T) {
	b, _ := newTestBus(0.5)
	b.SetGain(0.7)
	b.SetGain(0.7)
	if b.Gain() != 0.7 {
		t.Errorf("expected 0.7, got %v", b.Gain())
	}
	if b.Nominal() != 0.7 {
		t.Errorf("expected nominal 0.7, got %v", b.Nominal())
	}
}

func TestNewBusClamps(t *testing.T) {
	b := NewBus("loud", 3)
	if b.Gain() != 1 {
		t.Errorf("expected clamped gain 1, got %v", b.Gain())
	}
	if b.ID() != "loud" {
		t.Errorf("expected id loud, got %s", b.ID())
	}
}

func TestRampGainLinear(t *testing.T) {
	b, clock := newTestBus(1)
	b.RampGain(1, 0, 100*time.Millisecond)

	if g := b.Gain(); g != 1 {
		t.Errorf("expected 1 at start, got %v", g)
	}
	clock.advance(25 * time.Millisecond)
	if g := b.Gain(); math.Abs(g-0.75) > 1e-9 {
		t.Errorf("expected 0.75 at 25%%, got %v", g)
	}
	clock.advance(25 * time.Millisecond)
	if g := b.Gain(); math.Abs(g-0.5) > 1e-9 {
		t.Errorf("expected 0.5 at 50%%, got %v", g)
	}
	clock.advance(time.Second)
	if g := b.Gain(); g != 0 {
		t.Errorf("expected 0 after ramp, got %v", g)
	}
	if b.Nominal() != 1 {
		t.Errorf("ramp must not change nominal, got %v", b.Nominal())
	}
}

func TestRampZeroDuration(t *testing.T) {
	b, _ := newTestBus(1)
	b.RampGain(1, 0.2, 0)
	if b.Gain() != 0.2 {
		t.Errorf("expected 0.2, got %v", b.Gain())
	}
}

func TestDuckRestore(t *testing.T) {
	b, clock := newTestBus(0.8)
	b.Duck(0, 50*time.Millisecond)
	clock.advance(100 * time.Millisecond)
	if g := b.Gain(); g != 0 {
		t.Errorf("expected ducked gain 0, got %v", g)
	}

	b.Restore()
	if g := b.Gain(); g != 0.8 {
		t.Errorf("expected restored gain 0.8, got %v", g)
	}
}

func TestRestoreMidRamp(t *testing.T) {
	b, clock := newTestBus(0.6)
	b.Duck(0, time.Second)
	clock.advance(300 * time.Millisecond)
	b.Restore()
	clock.advance(time.Second)
	if g := b.Gain(); g != 0.6 {
		t.Errorf("expected 0.6 after restore, got %v", g)
	}
}

func TestSetGainCancelsRamp(t *testing.T) {
	b, clock := newTestBus(1)
	b.RampGain(1, 0, time.Second)
	clock.advance(100 * time.Millisecond)
	b.SetGain(0.4)
	clock.advance(time.Second)
	if g := b.Gain(); g != 0.4 {
		t.Errorf("expected 0.4, got %v", g)
	}
}

func readFloats(t *testing.T, r io.Reader) []float32 {
	t.Helper()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

func TestReaderAppliesGain(t *testing.T) {
	b, _ := newTestBus(0.5)
	buf := &audio.Buffer{Samples: []float32{1, -1, 0.5, 0}, SampleRate: 8000, Channels: 1}

	r := b.NewReader(buf)
	if r.Len() != 16 {
		t.Errorf("expected 16 bytes, got %d", r.Len())
	}
	got := readFloats(t, r)
	want := []float32{0.5, -0.5, 0.25, 0}
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: expected %f, got %f", i, want[i], got[i])
		}
	}
	if r.BytesRead() != 16 {
		t.Errorf("expected 16 bytes read, got %d", r.BytesRead())
	}
}

func TestReaderFollowsGainChanges(t *testing.T) {
	b, _ := newTestBus(1)
	buf := &audio.Buffer{Samples: []float32{0.5, 0.5}, SampleRate: 8000, Channels: 1}
	r := b.NewReader(buf)

	p := make([]byte, 4)
	if _, err := r.Read(p); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	first := math.Float32frombits(binary.LittleEndian.Uint32(p))

	b.SetGain(0)
	if _, err := r.Read(p); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	second := math.Float32frombits(binary.LittleEndian.Uint32(p))

	if first != 0.5 || second != 0 {
		t.Errorf("expected 0.5 then 0, got %f then %f", first, second)
	}
	if _, err := r.Read(p); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}
