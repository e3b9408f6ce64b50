// ABOUTME: Per-call state and browser socket handling of the simulator
// ABOUTME: Frames are queued per call and written by a single writer goroutine
package bridge

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Evatrad/evatrad-go/pkg/callctl"
	"github.com/gorilla/websocket"
)

// Frame types sent to the browser
const (
	typeInit       = "init"
	typeFinal      = "transcription-final"
	typeInterim    = "transcription-interim"
	typeRawAudio   = "receiver_raw_audio"
	typeCallStatus = "call_status"
	typeCallEnded  = "call_ended"
	typeTimeSync   = "time-sync"
	typeAudio      = "audio"
)

// frame is one outbound message; unset fields are omitted
type frame struct {
	Type           string `json:"type"`
	Source         string `json:"source,omitempty"`
	OriginalText   string `json:"originalText,omitempty"`
	TranslatedText string `json:"translatedText,omitempty"`
	AudioBase64    string `json:"audioBase64,omitempty"`
	Data           string `json:"data,omitempty"`
	Timestamp      int64  `json:"timestamp,omitempty"`
	Status         string `json:"status,omitempty"`
	Reason         string `json:"reason,omitempty"`
	ClientTime     int64  `json:"clientTime,omitempty"`
	ServerTime     int64  `json:"serverTime,omitempty"`
}

// inbound is any frame the browser sends
type inbound struct {
	Type       string `json:"type"`
	CallSid    string `json:"callSid"`
	Audio      string `json:"audio"`
	Source     string `json:"source"`
	Language   string `json:"language"`
	ClientTime int64  `json:"clientTime"`
}

// Call is one simulated phone call
type Call struct {
	SID              string
	To               string
	CallerLanguage   string
	ReceiverLanguage string

	mu           sync.Mutex
	status       string
	send         chan frame
	callerFrames int
	callerBytes  int

	attached   chan struct{}
	attachOnce sync.Once
	ended      chan struct{}
	endOnce    sync.Once
}

func newCall(sid string, req callctl.CallRequest) *Call {
	return &Call{
		SID:              sid,
		To:               req.To,
		CallerLanguage:   req.CallerLanguage,
		ReceiverLanguage: req.ReceiverLanguage,
		status:           "queued",
		attached:         make(chan struct{}),
		ended:            make(chan struct{}),
	}
}

// Status returns the telephony status
func (c *Call) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// CallerFrames returns how many caller audio frames arrived and their
// decoded size in bytes
func (c *Call) CallerFrames() (frames, bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callerFrames, c.callerBytes
}

// Ended is closed when the call is over
func (c *Call) Ended() <-chan struct{} {
	return c.ended
}

func (c *Call) setStatus(status string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

// attach binds the first browser socket. Later sockets are refused.
func (c *Call) attach() (chan frame, bool) {
	ok := false
	c.attachOnce.Do(func() {
		c.mu.Lock()
		c.send = make(chan frame, 256)
		c.mu.Unlock()
		close(c.attached)
		ok = true
	})
	if !ok {
		return nil, false
	}
	return c.send, true
}

// push queues f for the socket. Frames before attach or beyond the queue
// are dropped.
func (c *Call) push(f frame) bool {
	c.mu.Lock()
	send := c.send
	c.mu.Unlock()
	if send == nil {
		return false
	}
	select {
	case send <- f:
		return true
	default:
		return false
	}
}

// finish ends the call once with a terminal status
func (c *Call) finish(status, reason string) {
	c.endOnce.Do(func() {
		c.setStatus(status)
		c.push(frame{Type: typeCallStatus, Status: status})
		c.push(frame{Type: typeCallEnded, Reason: reason})
		close(c.ended)
	})
}

func (c *Call) recordCaller(data string) int {
	raw, err := base64.StdEncoding.DecodeString(data)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callerFrames++
	if err == nil {
		c.callerBytes += len(raw)
	}
	return c.callerFrames
}

func encodeClip(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// handleWebSocket runs one browser connection: init handshake, then the
// reader loop while a writer drains the call's frame queue
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteJSON(frame{Type: typeInit}); err != nil {
		s.logger.Error("Failed to request init", "err", err)
		return
	}

	// Frames sent before init cannot be attributed to a call and are dropped
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var hello inbound
	for hello.Type != typeInit {
		hello = inbound{}
		if err := conn.ReadJSON(&hello); err != nil {
			s.logger.Error("Failed to read init", "err", err)
			return
		}
		if hello.Type != typeInit {
			s.logger.Debug("Dropping frame before init", "type", hello.Type)
		}
	}
	conn.SetReadDeadline(time.Time{})
	c, ok := s.Lookup(hello.CallSid)
	if !ok {
		s.logger.Warn("Socket for unknown call", "call_sid", hello.CallSid)
		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		conn.WriteJSON(frame{Type: typeCallEnded, Reason: "unknown call"})
		return
	}
	send, ok := c.attach()
	if !ok {
		s.logger.Warn("Call already has a socket", "call_sid", c.SID)
		return
	}
	s.logger.Info("Browser attached", "call_sid", c.SID, "remote", r.RemoteAddr)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.writer(conn, c, send)
	}()

	c.push(frame{Type: typeCallStatus, Status: c.Status()})

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("Socket read ended", "call_sid", c.SID, "err", err)
			}
			return
		}
		s.handleInbound(c, msg)
	}
}

func (s *Server) handleInbound(c *Call, msg inbound) {
	switch msg.Type {
	case typeAudio:
		n := c.recordCaller(msg.Audio)
		if n%s.config.CallerTurnFrames == 0 {
			s.callerTurn(c, n/s.config.CallerTurnFrames-1)
		}
	case typeTimeSync:
		now := time.Now().Add(s.config.ClockSkew).UnixMilli()
		c.push(frame{Type: typeTimeSync, ClientTime: msg.ClientTime, ServerTime: now})
	case typeInit:
	default:
		s.logger.Debug("Ignoring browser message", "type", msg.Type)
	}
}

// writer sends queued frames until the call ends, then flushes what is
// left and closes the socket
func (s *Server) writer(conn *websocket.Conn, c *Call, send chan frame) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	write := func(f frame) bool {
		data, err := json.Marshal(f)
		if err != nil {
			s.logger.Error("Failed to marshal frame", "err", err)
			return true
		}
		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debug("Socket write failed", "call_sid", c.SID, "err", err)
			return false
		}
		return true
	}

	for {
		select {
		case f := <-send:
			if !write(f) {
				return
			}
		case <-c.ended:
			for {
				select {
				case f := <-send:
					if !write(f) {
						return
					}
				default:
					msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended")
					conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
					conn.Close()
					return
				}
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}
