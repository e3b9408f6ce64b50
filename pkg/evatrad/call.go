// ABOUTME: Call lifecycle orchestration
// ABOUTME: Prompts, call placement, transport dispatch, polling and teardown
package evatrad

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Evatrad/evatrad-go/pkg/prompt"
	"github.com/Evatrad/evatrad-go/pkg/protocol"
	"github.com/charmbracelet/log"
)

// CallControl places and ends calls. *callctl.Client satisfies it.
type CallControl interface {
	StartCall(ctx context.Context, destination, callerLang, receiverLang string) (string, error)
	EndCall(ctx context.Context, callSid string) error
	CallStatus(ctx context.Context, callSid string) (string, error)
}

// Stream is a connected transport. *protocol.Client satisfies it.
type Stream interface {
	Inbox() <-chan protocol.Message
	Close() error
}

// DialFunc connects the transport for callSid
type DialFunc func(ctx context.Context, callSid string) (Stream, error)

// End reasons reported to OnEnded
const (
	ReasonHangup    = "hangup"
	ReasonRemote    = "remote hangup"
	ReasonNoAnswer  = "no answer"
	ReasonTransport = "transport closed"
	ReasonFailed    = "failed"
)

// CallConfig holds call configuration
type CallConfig struct {
	Destination      string
	CallerLanguage   string
	ReceiverLanguage string

	// StatusInterval is the status polling period while unanswered
	// (default: 2s)
	StatusInterval time.Duration

	// EndTimeout bounds the end-call request during teardown
	// (default: 5s)
	EndTimeout time.Duration

	// OnMessage observes every inbound message before it is handled
	OnMessage func(protocol.Message)

	// OnTranscript receives every transcription, interim and final
	OnTranscript func(protocol.Transcription)

	// OnStatus receives call status changes
	OnStatus func(string)

	// OnEnded is called once with the teardown reason
	OnEnded func(reason string)

	// Logger receives call logs
	Logger *log.Logger
}

// Call drives one phone call through a Session
type Call struct {
	config  CallConfig
	session *Session
	control CallControl
	dial    DialFunc
	logger  *log.Logger

	mu       sync.Mutex
	sid      string
	stream   Stream
	answered bool
	status   string
	ending   bool
	reason   string

	hangup chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewCall creates a call. The call owns session and closes it on teardown.
func NewCall(session *Session, control CallControl, dial DialFunc, config CallConfig) *Call {
	if config.StatusInterval == 0 {
		config.StatusInterval = 2 * time.Second
	}
	if config.EndTimeout == 0 {
		config.EndTimeout = 5 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = log.WithPrefix("call")
	}

	return &Call{
		config:  config,
		session: session,
		control: control,
		dial:    dial,
		logger:  logger,
		hangup:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// SID returns the call SID once the call has been placed
func (c *Call) SID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sid
}

// Status returns the last known call status
func (c *Call) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Reason returns why the call ended, empty while it is running
func (c *Call) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Done is closed after teardown
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Session returns the audio session
func (c *Call) Session() *Session {
	return c.session
}

// Hangup ends the call from the local side. A welcome prompt still
// playing is cut short.
func (c *Call) Hangup() {
	c.once.Do(func() {
		close(c.hangup)
		c.session.StopPrompts()
	})
}

// Run places the call and blocks until it ends. The returned error
// describes why the call could not be set up; a normal hangup returns nil.
func (c *Call) Run(ctx context.Context) error {
	c.setStatus("initializing")

	if err := c.session.PlayWelcome(ctx); err != nil && !errors.Is(err, prompt.ErrStopped) {
		c.logger.Warn("Welcome prompt failed", "err", err)
	}
	if c.stopRequested(ctx) {
		c.end(ReasonHangup)
		return nil
	}
	if err := c.session.StartWaiting(); err != nil && !errors.Is(err, prompt.ErrStopped) {
		c.logger.Warn("Waiting loop did not start", "err", err)
	}

	sid, err := c.control.StartCall(ctx, c.config.Destination, c.config.CallerLanguage, c.config.ReceiverLanguage)
	if err != nil {
		c.setStatus("failed")
		c.end(ReasonFailed)
		return err
	}
	c.mu.Lock()
	c.sid = sid
	c.mu.Unlock()
	c.setStatus("calling")

	stream, err := c.dial(ctx, sid)
	if err != nil {
		c.end(ReasonFailed)
		return fmt.Errorf("connect transport: %w", err)
	}
	c.mu.Lock()
	c.stream = stream
	c.mu.Unlock()

	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()
	go c.pollStatus(pollCtx)

	inbox := stream.Inbox()
	for {
		select {
		case msg, ok := <-inbox:
			if !ok {
				c.end(ReasonTransport)
				return nil
			}
			c.handle(msg)
		case <-c.session.PromptTimeout():
			c.logger.Warn("Nobody answered, ending call")
			c.end(ReasonNoAnswer)
			return nil
		case <-c.hangup:
			c.end(ReasonHangup)
			return nil
		case <-ctx.Done():
			c.end(ReasonHangup)
			return nil
		case <-c.done:
			return nil
		}
	}
}

func (c *Call) stopRequested(ctx context.Context) bool {
	select {
	case <-c.hangup:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// handle routes one inbound message
func (c *Call) handle(msg protocol.Message) {
	if c.config.OnMessage != nil {
		c.config.OnMessage(msg)
	}
	// The session has already logged and reported payload errors
	if err := c.session.HandleMessage(msg); err != nil {
		c.logger.Debug("Message audio dropped", "type", protocol.Type(msg), "err", err)
	}

	switch m := msg.(type) {
	case protocol.Transcription:
		if c.config.OnTranscript != nil {
			c.config.OnTranscript(m)
		}
	case protocol.CallStatus:
		c.applyStatus(m.Status)
	case protocol.CallEnded:
		c.logger.Info("Remote side ended the call", "reason", m.Reason)
		c.end(ReasonRemote)
	case protocol.RawAudio, protocol.AudioChunk, protocol.InitRequest, protocol.TimeSync, protocol.Unknown:
	}
}

// applyStatus reacts to a status from the transport or from polling
func (c *Call) applyStatus(status string) {
	if status == "" {
		return
	}
	changed := c.setStatus(status)

	switch {
	case IsTerminalStatus(status):
		c.logger.Info("Call finished", "status", status)
		c.end(status)
	case IsAnsweredStatus(status):
		c.mu.Lock()
		first := !c.answered
		c.answered = true
		c.mu.Unlock()
		if first {
			c.logger.Info("Call answered")
			c.session.StopPrompts()
		}
	default:
		if changed {
			c.logger.Debug("Call status", "status", status)
		}
	}
}

func (c *Call) setStatus(status string) bool {
	c.mu.Lock()
	changed := c.status != status
	c.status = status
	c.mu.Unlock()

	if changed && c.config.OnStatus != nil {
		c.config.OnStatus(status)
	}
	return changed
}

// pollStatus checks the call status until it is answered or ended
func (c *Call) pollStatus(ctx context.Context) {
	ticker := time.NewTicker(c.config.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}

		c.mu.Lock()
		sid, answered := c.sid, c.answered
		c.mu.Unlock()
		if answered {
			return
		}

		status, err := c.control.CallStatus(ctx, sid)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Debug("Status poll failed", "err", err)
			}
			continue
		}
		c.applyStatus(status)
	}
}

// end tears the call down once. Later calls are no-ops.
func (c *Call) end(reason string) {
	c.mu.Lock()
	if c.ending {
		c.mu.Unlock()
		return
	}
	c.ending = true
	c.reason = reason
	sid := c.sid
	stream := c.stream
	c.mu.Unlock()

	c.logger.Info("Ending call", "reason", reason, "call_sid", sid)

	if sid != "" {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.EndTimeout)
		if err := c.control.EndCall(ctx, sid); err != nil {
			c.logger.Error("End call request failed", "err", err)
		}
		cancel()
	}

	c.session.StopAllAudio()
	if stream != nil {
		if err := stream.Close(); err != nil {
			c.logger.Debug("Transport close failed", "err", err)
		}
	}
	if err := c.session.Close(); err != nil {
		c.logger.Debug("Session close failed", "err", err)
	}

	if c.config.OnEnded != nil {
		c.config.OnEnded(reason)
	}
	close(c.done)
}

// IsTerminalStatus reports whether status means the call is over
func IsTerminalStatus(status string) bool {
	switch status {
	case "completed", "failed", "busy", "no-answer", "canceled", "cancelled":
		return true
	}
	return false
}

// IsAnsweredStatus reports whether status means someone picked up
func IsAnsweredStatus(status string) bool {
	switch status {
	case "in-progress", "answered", "connected":
		return true
	}
	return false
}
