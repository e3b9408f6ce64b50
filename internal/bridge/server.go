// ABOUTME: Simulated translation bridge for local development and tests
// ABOUTME: Serves the call-control HTTP API and the browser WebSocket
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Evatrad/evatrad-go/internal/discovery"
	"github.com/Evatrad/evatrad-go/pkg/callctl"
	"github.com/Evatrad/evatrad-go/pkg/prompt"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeDeadline = 10 * time.Second

// Config holds simulator configuration
type Config struct {
	// Port is the HTTP listen port (default: 3000)
	Port int

	// Name is the advertised name (default: hostname-evatrad-bridge)
	Name string

	// EnableMDNS advertises the bridge on the local network
	EnableMDNS bool

	// AnswerAfter is how long a placed call rings (default: 3s)
	AnswerAfter time.Duration

	// TurnInterval is the silence before each receiver turn (default: 4s)
	TurnInterval time.Duration

	// FrameLength is the length of each raw audio frame (default: 100ms)
	FrameLength time.Duration

	// CallerTurnFrames is how many caller audio frames make one echoed
	// caller turn (default: 20)
	CallerTurnFrames int

	// WelcomeLength and WaitingLength size the prompt clips
	// (defaults: 1.2s and 600ms)
	WelcomeLength time.Duration
	WaitingLength time.Duration

	// ClockSkew is added to the server time in time-sync answers
	ClockSkew time.Duration

	// Script is the receiver conversation (default: DefaultScript)
	Script []Turn

	// EndAfterScript hangs up once the script has played
	EndAfterScript bool

	// BusyNumbers ring and then report busy instead of answering
	BusyNumbers []string

	// Logger receives simulator logs
	Logger *log.Logger
}

// Server is the simulated bridge
type Server struct {
	config   Config
	logger   *log.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	httpServer *http.Server
	mdns       *discovery.Manager

	mu    sync.Mutex
	calls map[string]*Call

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a simulator with its routes registered
func New(config Config) *Server {
	if config.Port == 0 {
		config.Port = 3000
	}
	if config.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		config.Name = fmt.Sprintf("%s-evatrad-bridge", hostname)
	}
	if config.AnswerAfter == 0 {
		config.AnswerAfter = 3 * time.Second
	}
	if config.TurnInterval == 0 {
		config.TurnInterval = 4 * time.Second
	}
	if config.FrameLength == 0 {
		config.FrameLength = 100 * time.Millisecond
	}
	if config.CallerTurnFrames == 0 {
		config.CallerTurnFrames = 20
	}
	if config.WelcomeLength == 0 {
		config.WelcomeLength = 1200 * time.Millisecond
	}
	if config.WaitingLength == 0 {
		config.WaitingLength = 600 * time.Millisecond
	}
	if config.Script == nil {
		config.Script = DefaultScript
	}
	logger := config.Logger
	if logger == nil {
		logger = log.WithPrefix("bridge")
	}

	s := &Server{
		config: config,
		logger: logger,
		upgrader: websocket.Upgrader{
			// The simulator serves local development only
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux:      http.NewServeMux(),
		calls:    make(map[string]*Call),
		stopChan: make(chan struct{}),
	}

	s.mux.HandleFunc("/call", s.handleCall)
	s.mux.HandleFunc("/end-call", s.handleEndCall)
	s.mux.HandleFunc("/call-status", s.handleCallStatus)
	s.mux.HandleFunc("/audio-messages", s.handleAudioMessages)
	s.mux.HandleFunc("/browser", s.handleWebSocket)
	return s
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Stop or a listener error
func (s *Server) Start() error {
	if s.config.EnableMDNS {
		s.mdns = discovery.NewManager(discovery.Config{})
		err := s.mdns.Advertise(discovery.Advertisement{
			Name:   s.config.Name,
			Port:   s.config.Port,
			Scheme: "http",
		})
		if err != nil {
			s.logger.Warn("Failed to start mDNS advertisement", "err", err)
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	s.logger.Info("Bridge listening", "addr", addr, "name", s.config.Name)

	var serverErr error
	select {
	case <-s.stopChan:
		s.logger.Info("Bridge shutting down")
	case err := <-errChan:
		serverErr = err
	}

	if s.mdns != nil {
		s.mdns.Stop()
	}
	s.endAll("server shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP shutdown failed", "err", err)
	}
	s.wg.Wait()

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Close ends every call and waits for their goroutines. For servers used
// through Handler without Start.
func (s *Server) Close() {
	s.Stop()
	s.endAll("server shutdown")
	s.wg.Wait()
}

func (s *Server) endAll(reason string) {
	s.mu.Lock()
	calls := make([]*Call, 0, len(s.calls))
	for _, c := range s.calls {
		calls = append(calls, c)
	}
	s.mu.Unlock()

	for _, c := range calls {
		c.finish("canceled", reason)
	}
}

// Lookup returns the call with sid
func (s *Server) Lookup(sid string) (*Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[sid]
	return c, ok
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req callctl.CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, callctl.CallResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.To) == "" {
		writeJSON(w, http.StatusBadRequest, callctl.CallResponse{Error: "missing destination number"})
		return
	}
	if req.CallerLanguage == "" || req.ReceiverLanguage == "" {
		writeJSON(w, http.StatusBadRequest, callctl.CallResponse{Error: "missing language"})
		return
	}

	c := newCall("CA"+strings.ReplaceAll(uuid.New().String(), "-", ""), req)
	s.mu.Lock()
	s.calls[c.SID] = c
	s.mu.Unlock()

	s.logger.Info("Placing call", "call_sid", c.SID, "to", req.To,
		"caller", req.CallerLanguage, "receiver", req.ReceiverLanguage)

	s.wg.Add(1)
	go s.runCall(c)

	writeJSON(w, http.StatusOK, callctl.CallResponse{Success: true, CallSid: c.SID})
}

func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		CallSid string `json:"callSid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	c, ok := s.Lookup(req.CallSid)
	if !ok {
		http.Error(w, "unknown call", http.StatusNotFound)
		return
	}

	s.logger.Info("Caller hung up", "call_sid", c.SID)
	c.finish("completed", "caller hung up")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	c, ok := s.Lookup(r.URL.Query().Get("callSid"))
	if !ok {
		http.Error(w, "unknown call", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": c.Status()})
}

func (s *Server) handleAudioMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	if q.Get("language") == "" {
		http.Error(w, "missing language", http.StatusBadRequest)
		return
	}

	var clip []byte
	var err error
	switch prompt.Kind(q.Get("type")) {
	case prompt.KindWelcome:
		clip, err = NewTone(660).WAV(s.config.WelcomeLength)
	case prompt.KindWaiting:
		clip, err = NewTone(440).WAV(s.config.WaitingLength)
	default:
		http.Error(w, "unknown prompt type", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.logger.Error("Failed to render prompt", "err", err)
		http.Error(w, "prompt unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Write(clip)
}

// runCall rings, answers and then plays the script once a socket is
// attached
func (s *Server) runCall(c *Call) {
	defer s.wg.Done()

	c.setStatus("ringing")
	if !s.wait(c, s.config.AnswerAfter) {
		return
	}

	if slices.Contains(s.config.BusyNumbers, c.To) {
		c.finish("busy", "line busy")
		return
	}

	c.setStatus("in-progress")
	c.push(frame{Type: typeCallStatus, Status: "in-progress"})
	s.logger.Info("Call answered", "call_sid", c.SID)

	select {
	case <-c.attached:
	case <-c.ended:
		return
	case <-s.stopChan:
		return
	}

	for i, turn := range s.config.Script {
		if !s.wait(c, s.config.TurnInterval) {
			return
		}
		if err := s.playTurn(c, turn); err != nil {
			s.logger.Error("Failed to play turn", "call_sid", c.SID, "turn", i, "err", err)
		}
	}

	if s.config.EndAfterScript {
		s.wait(c, s.config.TurnInterval)
		c.finish("completed", "receiver hung up")
	}
}

// wait sleeps d unless the call ends or the server stops first
func (s *Server) wait(c *Call, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.ended:
		return false
	case <-s.stopChan:
		return false
	}
}

// playTurn sends the receiver's voice frames, an interim caption and the
// final translation with synthesized speech
func (s *Server) playTurn(c *Call, turn Turn) error {
	tone := NewTone(turn.Frequency)
	frames, err := tone.MulawFrames(turn.Speech, s.config.FrameLength)
	if err != nil {
		return err
	}
	speech, err := NewTone(turn.Frequency * 2).WAV(turn.Speech)
	if err != nil {
		return err
	}

	produced := time.Now().UnixMilli()
	c.push(frame{Type: typeInterim, Source: "receiver", OriginalText: interim(turn.Original)})
	for _, f := range frames {
		c.push(frame{Type: typeRawAudio, Data: f})
	}
	c.push(frame{
		Type:           typeFinal,
		Source:         "receiver",
		OriginalText:   turn.Original,
		TranslatedText: turn.Translated,
		AudioBase64:    encodeClip(speech),
		Timestamp:      produced,
	})
	return nil
}

// callerTurn echoes a caller utterance back as its translation
func (s *Server) callerTurn(c *Call, n int) {
	reply := callerReplies[n%len(callerReplies)]
	speech, err := NewTone(523).WAV(time.Duration(s.config.CallerTurnFrames) * s.config.FrameLength / 2)
	if err != nil {
		s.logger.Error("Failed to render caller speech", "err", err)
		return
	}
	c.push(frame{
		Type:           typeFinal,
		Source:         "caller",
		OriginalText:   reply.Original,
		TranslatedText: reply.Translated,
		AudioBase64:    encodeClip(speech),
		Timestamp:      time.Now().UnixMilli(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
