// ABOUTME: Playback channel actor
// ABOUTME: Plays queued items strictly one at a time through a mix bus
package playback

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Evatrad/evatrad-go/pkg/audio"
	"github.com/Evatrad/evatrad-go/pkg/audio/cache"
	"github.com/Evatrad/evatrad-go/pkg/audio/decode"
	"github.com/Evatrad/evatrad-go/pkg/audio/mix"
	"github.com/Evatrad/evatrad-go/pkg/audio/output"
	"github.com/Evatrad/evatrad-go/pkg/audio/resample"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Decoder turns a payload into PCM. decode.PayloadDecoder and decode.Pool
// both satisfy it.
type Decoder interface {
	Decode(ctx context.Context, p audio.Payload) (*audio.Buffer, error)
}

// Config holds channel configuration
type Config struct {
	// Name labels the channel in logs and stats (default: bus ID)
	Name string

	// Bus is the gain stage the channel renders through (required)
	Bus *mix.Bus

	// Output is the shared output device (required)
	Output output.Output

	// Decoder decodes payloads (default: decode.NewPayloadDecoder(nil))
	Decoder Decoder

	// Cache memoizes decoded buffers (optional)
	Cache *cache.Cache

	// Gap is the pause between consecutive plays (default: 50ms)
	Gap time.Duration

	// Grace is added to a buffer's duration for the completion fallback
	// (default: 1s)
	Grace time.Duration

	// Logger receives channel logs (default: prefixed default logger)
	Logger *log.Logger

	// OnError is called for non-fatal item failures
	OnError func(Item, error)

	// OnFatal is called once when the output device becomes unusable
	OnFatal func(error)
}

// Stats contains channel counters
type Stats struct {
	Enqueued  int64
	Played    int64
	Failed    int64
	TimedOut  int64
	Preempted int64
	Dropped   int64
	Queued    int
	Playing   bool
}

// Channel serializes playback for one bus
type Channel struct {
	config Config
	logger *log.Logger

	mu           sync.Mutex
	queue        itemQueue
	seq          uint64
	active       *pending
	activeCancel context.CancelFunc
	fatal        error
	closed       bool
	lastEnd      time.Time
	stats        Stats

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a channel and starts its play loop
func New(config Config) *Channel {
	if config.Name == "" && config.Bus != nil {
		config.Name = config.Bus.ID()
	}
	if config.Decoder == nil {
		config.Decoder = decode.NewPayloadDecoder(nil)
	}
	if config.Gap == 0 {
		config.Gap = 50 * time.Millisecond
	}
	if config.Grace == 0 {
		config.Grace = time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = log.WithPrefix("channel/" + config.Name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		config: config,
		logger: logger,
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	heap.Init(&c.queue)

	c.wg.Add(1)
	go c.run()

	return c
}

// Name returns the channel name
func (c *Channel) Name() string {
	return c.config.Name
}

// Enqueue adds an item to the queue. The item starts immediately when the
// channel is idle and its delay has passed. A delayed item is not active
// until its start time.
func (c *Channel) Enqueue(item Item) *Result {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}
	res := newResult(item.ID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		res.complete(audio.ErrPreempted)
		return res
	}
	if c.fatal != nil {
		err := c.fatal
		c.stats.Failed++
		c.mu.Unlock()
		res.complete(err)
		return res
	}

	c.seq++
	heap.Push(&c.queue, &pending{item: item, result: res, seq: c.seq})
	c.stats.Enqueued++
	c.mu.Unlock()

	c.logger.Debug("Enqueued", "id", item.ID, "label", item.Label, "priority", item.Priority, "delay", item.Delay)

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return res
}

// CancelActive stops the item currently playing. Queued items are kept.
func (c *Channel) CancelActive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeCancel != nil {
		c.activeCancel()
	}
}

// Flush removes every queued item. The active item keeps playing.
func (c *Channel) Flush() int {
	c.mu.Lock()
	removed := c.queue.removeWhere(func(*pending) bool { return true })
	c.stats.Dropped += int64(len(removed))
	c.mu.Unlock()

	for _, p := range removed {
		p.result.complete(audio.ErrPreempted)
	}
	if len(removed) > 0 {
		c.logger.Debug("Flushed queue", "items", len(removed))
	}
	return len(removed)
}

// CancelBelow removes queued items with priority below p and cancels the
// active item if it is below p
func (c *Channel) CancelBelow(p audio.Priority) {
	c.mu.Lock()
	removed := c.queue.removeWhere(func(q *pending) bool { return q.item.Priority < p })
	c.stats.Dropped += int64(len(removed))
	if c.active != nil && c.active.item.Priority < p && c.activeCancel != nil {
		c.activeCancel()
	}
	c.mu.Unlock()

	for _, q := range removed {
		q.result.complete(audio.ErrPreempted)
	}
}

// Stop cancels the active item and flushes the queue
func (c *Channel) Stop() {
	c.Flush()
	c.CancelActive()
}

// IsPlaying reports whether an item is active
func (c *Channel) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Active returns the active item, if any
func (c *Channel) Active() (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Item{}, false
	}
	return c.active.item, true
}

// Len returns the number of queued items, excluding the active one
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// Stats returns a snapshot of the counters
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Queued = c.queue.Len()
	s.Playing = c.active != nil
	return s
}

// Err returns the fatal device error, if one occurred
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

// Close stops playback, fails queued items with audio.ErrPreempted and
// waits for the play loop to exit
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.Stop()
	c.cancel()
	c.wg.Wait()
}

// run is the play loop. Only this goroutine advances the queue.
func (c *Channel) run() {
	defer c.wg.Done()

	for {
		p, ctx, ok := c.next()
		if !ok {
			return
		}
		err := c.play(ctx, p)
		c.finish(p, err)
	}
}

// next blocks until a due item can be promoted to active. Items still in
// their start delay stay queued so later, higher-priority items can pass them.
func (c *Channel) next() (*pending, context.Context, bool) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, nil, false
		}
		i, earliest := c.queue.ready(time.Now())
		if i >= 0 {
			p := heap.Remove(&c.queue, i).(*pending)
			ctx, cancel := context.WithCancel(c.ctx)
			c.active = p
			c.activeCancel = cancel
			c.mu.Unlock()
			return p, ctx, true
		}
		c.mu.Unlock()

		var due <-chan time.Time
		var timer *time.Timer
		if !earliest.IsZero() {
			timer = time.NewTimer(time.Until(earliest))
			due = timer.C
		}
		select {
		case <-c.wake:
		case <-due:
		case <-c.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil, nil, false
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// finish records the outcome and clears the active slot
func (c *Channel) finish(p *pending, err error) {
	c.mu.Lock()
	if c.activeCancel != nil {
		c.activeCancel()
	}
	c.active = nil
	c.activeCancel = nil

	switch {
	case err == nil:
		c.stats.Played++
	case errors.Is(err, audio.ErrPreempted):
		c.stats.Preempted++
	case errors.Is(err, audio.ErrPlaybackTimeout):
		c.stats.TimedOut++
	default:
		c.stats.Failed++
	}
	c.mu.Unlock()

	// A timeout still counts as played to the caller
	if errors.Is(err, audio.ErrPlaybackTimeout) {
		p.result.complete(nil)
		return
	}
	p.result.complete(err)
}

// play runs one item to completion
func (c *Channel) play(ctx context.Context, p *pending) error {
	item := p.item

	if err := c.Err(); err != nil {
		return err
	}

	buf, err := c.load(ctx, item)
	if err != nil {
		if ctx.Err() != nil {
			return audio.ErrPreempted
		}
		c.logger.Error("Dropping undecodable item", "id", item.ID, "label", item.Label, "err", err)
		if c.config.OnError != nil {
			c.config.OnError(item, err)
		}
		return err
	}
	if buf.Frames() == 0 {
		c.logger.Debug("Skipping empty item", "id", item.ID, "label", item.Label)
		return nil
	}

	// Inter-item pause
	c.mu.Lock()
	lastEnd := c.lastEnd
	c.mu.Unlock()
	if wait := c.config.Gap - time.Since(lastEnd); !lastEnd.IsZero() && wait > 0 {
		if err := sleep(ctx, wait); err != nil {
			return audio.ErrPreempted
		}
	}

	if rate := c.config.Output.SampleRate(); rate > 0 {
		buf = resample.Resample(buf, rate)
	}

	voice, err := c.config.Output.Start(c.config.Bus.NewReader(buf))
	if err != nil {
		if audio.IsFatal(err) {
			c.setFatal(err, true)
			return err
		}
		c.logger.Error("Failed to start playback", "id", item.ID, "err", err)
		if c.config.OnError != nil {
			c.config.OnError(item, err)
		}
		return err
	}
	defer c.markEnd()

	duration := buf.Duration()
	c.logger.Debug("Playing", "id", item.ID, "label", item.Label, "duration", duration)

	fallback := time.NewTimer(duration + c.config.Grace)
	defer fallback.Stop()

	select {
	case <-voice.Done():
		return nil

	case <-fallback.C:
		voice.Stop()
		c.logger.Warn("Completion event never arrived, advancing", "id", item.ID, "label", item.Label, "after", duration+c.config.Grace)
		return fmt.Errorf("%w: %s", audio.ErrPlaybackTimeout, item.ID)

	case <-ctx.Done():
		voice.Stop()
		select {
		case <-voice.Done():
		case <-time.After(c.config.Grace):
			c.logger.Warn("Voice did not confirm stop", "id", item.ID)
		}
		c.logger.Debug("Preempted", "id", item.ID, "label", item.Label)
		return audio.ErrPreempted
	}
}

// load returns the item's PCM, consulting the cache for payloads
func (c *Channel) load(ctx context.Context, item Item) (*audio.Buffer, error) {
	if item.Buffer != nil {
		return item.Buffer.Mono(), nil
	}

	var key string
	if c.config.Cache != nil {
		key = item.Payload.Identity()
		if buf, ok := c.config.Cache.Get(key); ok {
			return buf, nil
		}
	}

	buf, err := c.config.Decoder.Decode(ctx, item.Payload)
	if err != nil {
		return nil, err
	}
	buf = buf.Mono()

	if c.config.Cache != nil {
		c.config.Cache.Put(key, buf)
	}
	return buf, nil
}

// Disable marks the output unusable for this channel without reporting it.
// Used when another channel sharing the device has already hit the error.
func (c *Channel) Disable(err error) {
	c.setFatal(err, false)
	c.CancelActive()
}

// setFatal records the first fatal error and fails everything queued
func (c *Channel) setFatal(err error, notify bool) {
	c.mu.Lock()
	if c.fatal != nil {
		c.mu.Unlock()
		return
	}
	c.fatal = err
	removed := c.queue.removeWhere(func(*pending) bool { return true })
	c.stats.Failed += int64(len(removed))
	c.mu.Unlock()

	if notify {
		c.logger.Error("Audio output unavailable, disabling channel", "err", err)
	}
	if notify && c.config.OnFatal != nil {
		c.config.OnFatal(err)
	}
	for _, p := range removed {
		p.result.complete(err)
	}
}

func (c *Channel) markEnd() {
	c.mu.Lock()
	c.lastEnd = time.Now()
	c.mu.Unlock()
}

// sleep waits for d or until ctx ends
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
