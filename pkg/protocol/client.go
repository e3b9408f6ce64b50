// ABOUTME: WebSocket client for the translation bridge
// ABOUTME: Reads typed messages and answers init and time-sync exchanges
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	clocksync "github.com/Evatrad/evatrad-go/pkg/sync"
	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by sends before Connect or after Close
var ErrNotConnected = errors.New("not connected")

// Config holds client configuration
type Config struct {
	// URL is the bridge WebSocket endpoint (see WebSocketURL)
	URL string

	// CallSid identifies the call; sent in reply to an init request
	CallSid string

	// Clock receives time-sync samples (optional)
	Clock *clocksync.ClockSync

	// SyncInterval is the time-sync request period (0 disables)
	SyncInterval time.Duration

	// Buffer is the Messages channel capacity (default: 100)
	Buffer int

	// HandshakeTimeout bounds the dial (default: 10s)
	HandshakeTimeout time.Duration

	// Logger receives client logs
	Logger *log.Logger
}

// Client is a bridge WebSocket client
type Client struct {
	config Config
	conn   *websocket.Conn
	mu     sync.RWMutex
	sendMu sync.Mutex
	logger *log.Logger

	// Messages delivers every inbound frame except init and time-sync,
	// which the client answers itself. Closed when the connection ends.
	Messages chan Message

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
	connected bool
	closed    bool
}

// WebSocketURL derives the browser socket endpoint from the API base URL
// by swapping http for ws and appending /browser
func WebSocketURL(apiBase string) (string, error) {
	u, err := url.Parse(strings.TrimRight(apiBase, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid api base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/browser"
	return u.String(), nil
}

// NewClient creates a new bridge client
func NewClient(config Config) *Client {
	if config.Buffer <= 0 {
		config.Buffer = 100
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = log.WithPrefix("protocol")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config:   config,
		logger:   logger,
		Messages: make(chan Message, config.Buffer),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Connect dials the bridge and starts reading
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: c.config.HandshakeTimeout,
	}

	c.logger.Info("Connecting", "url", c.config.URL)
	conn, _, err := dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readMessages()
	if c.config.Clock != nil && c.config.SyncInterval > 0 {
		go c.syncLoop()
	}

	return nil
}

// readMessages reads and dispatches frames until the connection ends
func (c *Client) readMessages() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		close(c.Messages)
		close(c.done)
	}()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Error("Read error", "err", err)
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
			}
			return
		}

		if msgType != websocket.TextMessage {
			c.logger.Debug("Ignoring non-text frame", "type", msgType, "bytes", len(data))
			continue
		}

		msg, err := Decode(data)
		if err != nil {
			c.logger.Warn("Dropping malformed message", "err", err)
			continue
		}

		switch m := msg.(type) {
		case InitRequest:
			if err := c.SendInit(); err != nil {
				c.logger.Error("Failed to send init", "err", err)
			}
			continue
		case TimeSync:
			if c.config.Clock != nil {
				t2 := m.ServerTime
				c.config.Clock.ProcessSyncResponse(m.ClientTime, t2, t2, clocksync.ClientMillis())
			}
			continue
		case Unknown:
			c.logger.Debug("Unknown message type", "type", m.Type)
		}

		select {
		case c.Messages <- msg:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) syncLoop() {
	ticker := time.NewTicker(c.config.SyncInterval)
	defer ticker.Stop()

	_ = c.SendTimeSync(clocksync.ClientMillis())
	for {
		select {
		case <-ticker.C:
			if err := c.SendTimeSync(clocksync.ClientMillis()); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// SendInit identifies the call on this socket
func (c *Client) SendInit() error {
	c.logger.Info("Sending init", "call_sid", c.config.CallSid)
	return c.sendJSON(Init{Type: TypeInit, CallSid: c.config.CallSid})
}

// SendAudio forwards base64 caller audio to the bridge
func (c *Client) SendAudio(data, source, language string) error {
	return c.sendJSON(Audio{Type: TypeAudio, Audio: data, Source: source, Language: language})
}

// SendTimeSync starts a clock sync exchange
func (c *Client) SendTimeSync(t1 int64) error {
	return c.sendJSON(TimeSyncRequest{Type: TypeTimeSync, ClientTime: t1})
}

// sendJSON sends a JSON frame
func (c *Client) sendJSON(v interface{}) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if conn == nil || !connected {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Inbox returns the Messages channel
func (c *Client) Inbox() <-chan Message {
	return c.Messages
}

// Done is closed when the read loop exits
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the read error that ended the connection, if any
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close closes the connection. Safe to call more than once, and after the
// read loop has already ended.
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	conn := c.conn
	wasConnected := c.connected
	alreadyClosed := c.closed
	c.connected = false
	c.closed = true
	c.mu.Unlock()

	if conn == nil || alreadyClosed {
		return nil
	}

	if wasConnected {
		c.sendMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.sendMu.Unlock()
	}

	return conn.Close()
}
