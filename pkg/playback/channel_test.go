// ABOUTME: Tests for the playback channel
// ABOUTME: Covers ordering, serialization, cancel/flush, failures and timeouts
package playback

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Evatrad/evatrad-go/pkg/audio"
	"github.com/Evatrad/evatrad-go/pkg/audio/cache"
	"github.com/Evatrad/evatrad-go/pkg/audio/mix"
	"github.com/Evatrad/evatrad-go/pkg/audio/output"
)

// fakeVoice is completed by the test or by Stop
type fakeVoice struct {
	first   float32
	done    chan struct{}
	once    sync.Once
	stopped bool
	out     *fakeOutput
}

func (v *fakeVoice) Done() <-chan struct{} { return v.done }

func (v *fakeVoice) Stop() {
	v.out.mu.Lock()
	v.stopped = true
	v.out.mu.Unlock()
	v.complete()
}

func (v *fakeVoice) complete() {
	v.once.Do(func() {
		v.out.mu.Lock()
		v.out.active--
		v.out.mu.Unlock()
		close(v.done)
	})
}

// fakeOutput records every started voice
type fakeOutput struct {
	mu       sync.Mutex
	rate     int
	active   int
	peak     int
	startErr error
	started  chan *fakeVoice
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{rate: 8000, started: make(chan *fakeVoice, 64)}
}

func (o *fakeOutput) Open(sampleRate, channels int) error { return nil }

func (o *fakeOutput) Start(r io.Reader) (output.Voice, error) {
	if o.startErr != nil {
		return nil, o.startErr
	}
	data, _ := io.ReadAll(r)
	v := &fakeVoice{done: make(chan struct{}), out: o}
	if len(data) >= 4 {
		v.first = math.Float32frombits(binary.LittleEndian.Uint32(data))
	}

	o.mu.Lock()
	o.active++
	if o.active > o.peak {
		o.peak = o.active
	}
	o.mu.Unlock()

	o.started <- v
	return v, nil
}

func (o *fakeOutput) SampleRate() int { return o.rate }

func (o *fakeOutput) Close() error { return nil }

func (o *fakeOutput) next(t *testing.T) *fakeVoice {
	t.Helper()
	select {
	case v := <-o.started:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback to start")
		return nil
	}
}

func (o *fakeOutput) expectIdle(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case v := <-o.started:
		t.Fatalf("unexpected playback start (first sample %f)", v.first)
	case <-time.After(d):
	}
}

// tone returns a 10ms buffer whose samples all equal v
func tone(v float32) *audio.Buffer {
	samples := make([]float32, 80)
	for i := range samples {
		samples[i] = v
	}
	return &audio.Buffer{Samples: samples, SampleRate: 8000, Channels: 1}
}

func newTestChannel(out *fakeOutput, mutate func(*Config)) *Channel {
	cfg := Config{
		Name:   "test",
		Bus:    mix.NewBus("test", 1),
		Output: out,
		Gap:    time.Millisecond,
		Grace:  time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

func wait(t *testing.T, r *Result) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := r.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("item %s never completed", r.ID())
	}
	return err
}

func TestEnqueuePlaysImmediatelyWhenIdle(t *testing.T) {
	out := newFakeOutput()
	ch := newTestChannel(out, nil)
	defer ch.Close()

	res := ch.Enqueue(Item{Buffer: tone(0.5)})
	v := out.next(t)
	if v.first != 0.5 {
		t.Errorf("expected first sample 0.5, got %f", v.first)
	}
	if !ch.IsPlaying() {
		t.Error("expected channel to report playing")
	}

	v.complete()
	if err := wait(t, res); err != nil {
		t.Errorf("expected nil result, got %v", err)
	}
}

func TestPriorityThenArrivalOrder(t *testing.T) {
	out := newFakeOutput()
	ch := newTestChannel(out, nil)
	defer ch.Close()

	first := ch.Enqueue(Item{Buffer: tone(0.1), Priority: audio.PriorityNormal})
	active := out.next(t)

	// Queued while the first item plays
	low := ch.Enqueue(Item{Buffer: tone(0.2), Priority: audio.PriorityLow})
	normal := ch.Enqueue(Item{Buffer: tone(0.3), Priority: audio.PriorityNormal})
	high := ch.Enqueue(Item{Buffer: tone(0.4), Priority: audio.PriorityHigh})
	normal2 := ch.Enqueue(Item{Buffer: tone(0.5), Priority: audio.PriorityNormal})

	if ch.Len() != 4 {
		t.Errorf("expected 4 queued, got %d", ch.Len())
	}

	active.complete()
	wait(t, first)

	want := []float32{0.4, 0.3, 0.5, 0.2}
	for i, w := range want {
		v := out.next(t)
		if v.first != w {
			t.Errorf("play %d: expected %f, got %f", i, w, v.first)
		}
		v.complete()
	}

	for _, r := range []*Result{low, normal, high, normal2} {
		if err := wait(t, r); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	}
}

func TestNeverOverlaps(t *testing.T) {
	out := newFakeOutput()
	ch := newTestChannel(out, nil)
	defer ch.Close()

	var results []*Result
	for i := 0; i < 10; i++ {
		results = append(results, ch.Enqueue(Item{Buffer: tone(0.1), Priority: audio.Priority(i % 3)}))
	}

	go func() {
		for i := 0; i < 10; i++ {
			v := <-out.started
			time.Sleep(2 * time.Millisecond)
			v.complete()
		}
	}()

	for _, r := range results {
		wait(t, r)
	}

	out.mu.Lock()
	defer out.mu.Unlock()
	if out.peak != 1 {
		t.Errorf("expected at most one active voice, saw %d", out.peak)
	}
	if got := ch.Stats().Played; got != 10 {
		t.Errorf("expected 10 played, got %d", got)
	}
}

func TestDecodeFailureSkipsItem(t *testing.T) {
	out := newFakeOutput()
	var mu sync.Mutex
	var failures []error

	ch := newTestChannel(out, func(c *Config) {
		c.OnError = func(_ Item, err error) {
			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
		}
	})
	defer ch.Close()

	first := ch.Enqueue(Item{Buffer: tone(0.1)})
	active := out.next(t)

	bad := ch.Enqueue(Item{Payload: audio.Payload{Data: []byte("definitely not audio")}})
	third := ch.Enqueue(Item{Buffer: tone(0.3)})

	active.complete()
	v := out.next(t)
	if v.first != 0.3 {
		t.Errorf("expected third item to play, got %f", v.first)
	}
	v.complete()

	if err := wait(t, first); err != nil {
		t.Errorf("first: expected nil, got %v", err)
	}
	if err := wait(t, bad); !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Errorf("bad: expected ErrUnsupportedFormat, got %v", err)
	}
	if err := wait(t, third); err != nil {
		t.Errorf("third: expected nil, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(failures) != 1 {
		t.Errorf("expected exactly one reported error, got %d", len(failures))
	}
	if ch.Stats().Failed != 1 {
		t.Errorf("expected 1 failed, got %d", ch.Stats().Failed)
	}
}

func TestCancelActiveKeepsQueue(t *testing.T) {
	out := newFakeOutput()
	ch := newTestChannel(out, nil)
	defer ch.Close()

	first := ch.Enqueue(Item{Buffer: tone(0.1)})
	v := out.next(t)
	second := ch.Enqueue(Item{Buffer: tone(0.2)})

	ch.CancelActive()
	if err := wait(t, first); !errors.Is(err, audio.ErrPreempted) {
		t.Errorf("expected ErrPreempted, got %v", err)
	}
	out.mu.Lock()
	stopped := v.stopped
	out.mu.Unlock()
	if !stopped {
		t.Error("expected active voice to be stopped")
	}

	next := out.next(t)
	if next.first != 0.2 {
		t.Errorf("expected queued item to play next, got %f", next.first)
	}
	next.complete()
	if err := wait(t, second); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestFlushKeepsActive(t *testing.T) {
	out := newFakeOutput()
	ch := newTestChannel(out, nil)
	defer ch.Close()

	first := ch.Enqueue(Item{Buffer: tone(0.1)})
	v := out.next(t)
	queued := ch.Enqueue(Item{Buffer: tone(0.2)})

	if n := ch.Flush(); n != 1 {
		t.Errorf("expected 1 flushed, got %d", n)
	}
	if err := wait(t, queued); !errors.Is(err, audio.ErrPreempted) {
		t.Errorf("expected ErrPreempted for flushed item, got %v", err)
	}
	if !ch.IsPlaying() {
		t.Error("flush must not stop the active item")
	}

	v.complete()
	if err := wait(t, first); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	out.expectIdle(t, 50*time.Millisecond)
}

func TestCancelBelow(t *testing.T) {
	out := newFakeOutput()
	ch := newTestChannel(out, nil)
	defer ch.Close()

	prompt := ch.Enqueue(Item{Buffer: tone(0.1), Priority: audio.PriorityLow})
	out.next(t)
	queuedLow := ch.Enqueue(Item{Buffer: tone(0.2), Priority: audio.PriorityLow})
	queuedNormal := ch.Enqueue(Item{Buffer: tone(0.3), Priority: audio.PriorityNormal})

	ch.CancelBelow(audio.PriorityNormal)

	if err := wait(t, prompt); !errors.Is(err, audio.ErrPreempted) {
		t.Errorf("expected active low item preempted, got %v", err)
	}
	if err := wait(t, queuedLow); !errors.Is(err, audio.ErrPreempted) {
		t.Errorf("expected queued low item dropped, got %v", err)
	}

	v := out.next(t)
	if v.first != 0.3 {
		t.Errorf("expected normal item to play, got %f", v.first)
	}
	v.complete()
	if err := wait(t, queuedNormal); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestStartDelay(t *testing.T) {
	out := newFakeOutput()
	ch := newTestChannel(out, nil)
	defer ch.Close()

	start := time.Now()
	ch.Enqueue(Item{Buffer: tone(0.1), Delay: 80 * time.Millisecond})
	v := out.next(t)
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Errorf("expected start after ~80ms, started after %v", elapsed)
	}
	v.complete()
}

func TestDelayedItemStaysQueued(t *testing.T) {
	out := newFakeOutput()
	ch := newTestChannel(out, nil)
	defer ch.Close()

	res := ch.Enqueue(Item{Buffer: tone(0.1), Delay: time.Second})
	time.Sleep(20 * time.Millisecond)
	if ch.IsPlaying() {
		t.Error("expected no active item during the start delay")
	}
	if ch.Len() != 1 {
		t.Errorf("expected delayed item queued, got %d", ch.Len())
	}

	ch.Flush()
	if err := wait(t, res); !errors.Is(err, audio.ErrPreempted) {
		t.Errorf("expected ErrPreempted, got %v", err)
	}
	out.expectIdle(t, 50*time.Millisecond)
}

func TestHighPriorityPassesDelayedItem(t *testing.T) {
	out := newFakeOutput()
	ch := newTestChannel(out, nil)
	defer ch.Close()

	delayed := ch.Enqueue(Item{Buffer: tone(0.1), Priority: audio.PriorityNormal, Delay: 300 * time.Millisecond})
	time.Sleep(10 * time.Millisecond)
	urgent := ch.Enqueue(Item{Buffer: tone(0.9), Priority: audio.PriorityHigh})

	v := out.next(t)
	if v.first != 0.9 {
		t.Fatalf("expected high priority item first, got %f", v.first)
	}
	v.complete()
	if err := wait(t, urgent); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	start := time.Now()
	v = out.next(t)
	if v.first != 0.1 {
		t.Errorf("expected delayed item second, got %f", v.first)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("expected delayed item to keep its start time, started after %v", elapsed)
	}
	v.complete()
	if err := wait(t, delayed); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestFallbackTimeout(t *testing.T) {
	out := newFakeOutput()
	ch := newTestChannel(out, func(c *Config) {
		c.Grace = 30 * time.Millisecond
	})
	defer ch.Close()

	first := ch.Enqueue(Item{Buffer: tone(0.1)})
	second := ch.Enqueue(Item{Buffer: tone(0.2)})

	// Never complete the first voice
	out.next(t)

	if err := wait(t, first); err != nil {
		t.Errorf("timeout should count as completion, got %v", err)
	}
	v := out.next(t)
	if v.first != 0.2 {
		t.Errorf("expected queue to advance, got %f", v.first)
	}
	v.complete()
	wait(t, second)

	if got := ch.Stats().TimedOut; got != 1 {
		t.Errorf("expected 1 timeout, got %d", got)
	}
}

func TestDeviceUnavailableIsFatalOnce(t *testing.T) {
	out := newFakeOutput()
	out.startErr = audio.ErrDeviceUnavailable

	var mu sync.Mutex
	fatalCount := 0
	ch := newTestChannel(out, func(c *Config) {
		c.OnFatal = func(error) {
			mu.Lock()
			fatalCount++
			mu.Unlock()
		}
	})
	defer ch.Close()

	a := ch.Enqueue(Item{Buffer: tone(0.1)})
	b := ch.Enqueue(Item{Buffer: tone(0.2)})
	if err := wait(t, a); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}
	if err := wait(t, b); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}

	c := ch.Enqueue(Item{Buffer: tone(0.3)})
	if err := wait(t, c); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Errorf("expected later enqueue to fail fast, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if fatalCount != 1 {
		t.Errorf("expected fatal reported once, got %d", fatalCount)
	}
	if !errors.Is(ch.Err(), audio.ErrDeviceUnavailable) {
		t.Errorf("expected channel error, got %v", ch.Err())
	}
}

func TestCacheReusesDecode(t *testing.T) {
	out := newFakeOutput()
	c := cache.New(10)
	ch := newTestChannel(out, func(cfg *Config) { cfg.Cache = c })
	defer ch.Close()

	payload := audio.Payload{Data: []byte{0x80, 0x80, 0x80, 0x80}, Encoding: audio.EncodingMulaw}
	for i := 0; i < 3; i++ {
		res := ch.Enqueue(Item{Payload: payload})
		out.next(t).complete()
		if err := wait(t, res); err != nil {
			t.Fatalf("play %d failed: %v", i, err)
		}
	}

	stats := c.Stats()
	if stats.Misses != 1 || stats.Hits != 2 {
		t.Errorf("expected 1 miss and 2 hits, got %+v", stats)
	}
}

func TestResamplesToDeviceRate(t *testing.T) {
	out := newFakeOutput()
	out.rate = 16000
	ch := newTestChannel(out, nil)
	defer ch.Close()

	res := ch.Enqueue(Item{Buffer: tone(0.25)})
	v := out.next(t)
	if math.Abs(float64(v.first-0.25)) > 1e-5 {
		t.Errorf("expected 0.25, got %f", v.first)
	}
	v.complete()
	wait(t, res)
}

func TestBusGainApplied(t *testing.T) {
	out := newFakeOutput()
	ch := newTestChannel(out, func(c *Config) { c.Bus = mix.NewBus("quiet", 0.5) })
	defer ch.Close()

	ch.Enqueue(Item{Buffer: tone(0.8)})
	v := out.next(t)
	if math.Abs(float64(v.first-0.4)) > 1e-6 {
		t.Errorf("expected gain-scaled 0.4, got %f", v.first)
	}
	v.complete()
}

func TestCloseFailsPending(t *testing.T) {
	out := newFakeOutput()
	ch := newTestChannel(out, nil)

	active := ch.Enqueue(Item{Buffer: tone(0.1)})
	out.next(t)
	queued := ch.Enqueue(Item{Buffer: tone(0.2)})

	ch.Close()

	if err := wait(t, active); !errors.Is(err, audio.ErrPreempted) {
		t.Errorf("expected active preempted, got %v", err)
	}
	if err := wait(t, queued); !errors.Is(err, audio.ErrPreempted) {
		t.Errorf("expected queued preempted, got %v", err)
	}

	after := ch.Enqueue(Item{Buffer: tone(0.3)})
	if err := wait(t, after); !errors.Is(err, audio.ErrPreempted) {
		t.Errorf("expected enqueue after close to fail, got %v", err)
	}
}
