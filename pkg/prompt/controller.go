// ABOUTME: Prompt controller state machine and waiting loop
// ABOUTME: Fetches prompts, plays them at low priority and enforces the safety timeout
package prompt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Evatrad/evatrad-go/pkg/audio"
	"github.com/Evatrad/evatrad-go/pkg/playback"
	"github.com/charmbracelet/log"
)

// Kind selects a prompt
type Kind string

const (
	KindWelcome Kind = "welcome"
	KindWaiting Kind = "waiting"
)

// Fetcher downloads prompt audio
type Fetcher interface {
	FetchPrompt(ctx context.Context, language string, kind Kind) (audio.Payload, error)
}

// Player is the prompt channel. *playback.Channel satisfies it.
type Player interface {
	Enqueue(item playback.Item) *playback.Result
	CancelActive()
	Flush() int
}

// State is the controller state
type State int

const (
	StateIdle State = iota
	StateWelcoming
	StateWaiting
	StateStopped
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWelcoming:
		return "welcoming"
	case StateWaiting:
		return "waiting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrStopped is returned by operations on a stopped controller
var ErrStopped = errors.New("prompt controller stopped")

// Config holds controller configuration
type Config struct {
	// Language is the caller language used to fetch prompts
	Language string

	// LoopDelay is the pause between waiting prompts (default: 3s)
	LoopDelay time.Duration

	// SafetyTimeout ends waiting when the call is never answered
	// (default: 60s)
	SafetyTimeout time.Duration

	// OnTimeout is called once when the safety timeout fires
	OnTimeout func()

	// OnStateChange is called on every transition
	OnStateChange func(State)

	// Logger receives controller logs
	Logger *log.Logger
}

// Stats contains controller counters
type Stats struct {
	Fetched     int64
	FetchErrors int64
	Played      int64
	Skipped     int64
}

// Controller plays welcome and waiting prompts
type Controller struct {
	config  Config
	fetcher Fetcher
	player  Player
	logger  *log.Logger

	mu             sync.Mutex
	state          State
	active         bool
	currentWaiting string
	timer          *time.Timer
	stats          Stats

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a controller in the Idle state
func New(fetcher Fetcher, player Player, config Config) *Controller {
	if config.LoopDelay == 0 {
		config.LoopDelay = 3 * time.Second
	}
	if config.SafetyTimeout == 0 {
		config.SafetyTimeout = 60 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = log.WithPrefix("prompt")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		config:  config,
		fetcher: fetcher,
		player:  player,
		logger:  logger,
		state:   StateIdle,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentWaiting returns the identity of the last fetched waiting prompt
func (c *Controller) CurrentWaiting() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentWaiting
}

// Stats returns a snapshot of the counters
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Done is closed when the waiting loop has exited
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) transition(from []State, to State) error {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return ErrStopped
	}
	ok := false
	for _, s := range from {
		if c.state == s {
			ok = true
			break
		}
	}
	if !ok {
		cur := c.state
		c.mu.Unlock()
		return fmt.Errorf("invalid prompt transition %s -> %s", cur, to)
	}
	c.state = to
	c.active = true
	c.mu.Unlock()

	c.logger.Debug("State change", "state", to)
	if c.config.OnStateChange != nil {
		c.config.OnStateChange(to)
	}
	return nil
}

// PlayWelcome fetches and plays the welcome prompt, blocking until it has
// finished or failed. Fetch and playback failures are logged, not returned.
func (c *Controller) PlayWelcome(ctx context.Context) error {
	if err := c.transition([]State{StateIdle}, StateWelcoming); err != nil {
		return err
	}

	ctx, cancel := c.scope(ctx)
	defer cancel()

	p, err := c.fetch(ctx, KindWelcome)
	if err != nil {
		return c.stoppedOr(nil)
	}

	res, ok := c.enqueueIfActive(p, KindWelcome)
	if !ok {
		return ErrStopped
	}
	if err := res.Wait(ctx); err != nil && !audio.IsExpected(err) && ctx.Err() == nil {
		c.logger.Error("Welcome prompt failed", "err", err)
	}
	return c.stoppedOr(nil)
}

// StartWaiting begins the waiting loop and the safety timer. The loop runs
// until Stop.
func (c *Controller) StartWaiting() error {
	if err := c.transition([]State{StateIdle, StateWelcoming}, StateWaiting); err != nil {
		return err
	}

	c.mu.Lock()
	c.timer = time.AfterFunc(c.config.SafetyTimeout, c.onSafetyTimeout)
	c.mu.Unlock()

	go c.loop()
	return nil
}

func (c *Controller) loop() {
	defer close(c.done)
	ctx := c.ctx

	for c.isActive() {
		p, err := c.fetch(ctx, KindWaiting)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// The next iteration is the retry
			if !c.pause(ctx) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.currentWaiting = p.Identity()
		c.mu.Unlock()

		res, ok := c.enqueueIfActive(p, KindWaiting)
		if !ok {
			return
		}
		if err := res.Wait(ctx); err != nil && ctx.Err() == nil && !audio.IsExpected(err) {
			c.logger.Warn("Waiting prompt failed", "err", err)
		}

		if !c.isActive() {
			return
		}
		if !c.pause(ctx) {
			return
		}
	}
}

// enqueueIfActive queues a prompt unless the controller stopped. The check
// and the enqueue happen under the lock Stop takes, so a stale prompt can
// never start after Stop has flushed the channel.
func (c *Controller) enqueueIfActive(p audio.Payload, kind Kind) (*playback.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		c.stats.Skipped++
		c.logger.Debug("Skipping prompt fetched after stop", "kind", kind, "identity", p.Identity())
		return nil, false
	}
	c.stats.Played++
	res := c.player.Enqueue(playback.Item{
		Payload:  p,
		Priority: audio.PriorityLow,
		Label:    string(kind),
	})
	return res, true
}

func (c *Controller) fetch(ctx context.Context, kind Kind) (audio.Payload, error) {
	if !c.isActive() {
		return audio.Payload{}, ErrStopped
	}
	p, err := c.fetcher.FetchPrompt(ctx, c.config.Language, kind)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if ctx.Err() == nil {
			c.stats.FetchErrors++
			c.logger.Warn("Failed to fetch prompt", "kind", kind, "err", err)
		}
		return audio.Payload{}, err
	}
	c.stats.Fetched++
	return p, nil
}

func (c *Controller) pause(ctx context.Context) bool {
	t := time.NewTimer(c.config.LoopDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return c.isActive()
	case <-ctx.Done():
		return false
	}
}

func (c *Controller) isActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// scope derives a context that ends on Stop or when ctx ends
func (c *Controller) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	scoped, cancel := context.WithCancel(c.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return scoped, func() {
		stop()
		cancel()
	}
}

func (c *Controller) stoppedOr(err error) error {
	if c.State() == StateStopped {
		return ErrStopped
	}
	return err
}

func (c *Controller) onSafetyTimeout() {
	if c.State() != StateWaiting {
		return
	}
	c.logger.Warn("Call not answered, giving up", "after", c.config.SafetyTimeout)
	c.Stop()
	if c.config.OnTimeout != nil {
		c.config.OnTimeout()
	}
}

// Stop ends prompt playback immediately: in-flight fetches and plays are
// canceled and the prompt channel is flushed. Stop is idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	wasWaiting := c.state == StateWaiting
	c.state = StateStopped
	c.active = false
	if c.timer != nil {
		c.timer.Stop()
	}
	c.cancel()
	c.player.Flush()
	c.player.CancelActive()
	c.mu.Unlock()

	// The loop closes done itself
	if !wasWaiting {
		close(c.done)
	}

	c.logger.Debug("State change", "state", StateStopped)
	if c.config.OnStateChange != nil {
		c.config.OnStateChange(StateStopped)
	}
}
