// ABOUTME: Audio session for one call
// ABOUTME: Wires device, buses, channels, cache, scheduler and prompts
package evatrad

import (
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
	"github.com/Evatrad/evatrad-go/pkg/playback"
	"github.com/Evatrad/evatrad-go/pkg/prompt"
	"github.com/Evatrad/evatrad-go/pkg/protocol"
	"github.com/Evatrad/evatrad-go/pkg/scheduler"
	clocksync "github.com/Evatrad/evatrad-go/pkg/sync"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// SessionConfig holds session configuration
type SessionConfig struct {
	// Output is the audio device (default: output.NewOto())
	Output output.Output

	// SampleRate is the device rate (default: 48000)
	SampleRate int

	// OriginalGain is the nominal gain of the original voice (default: 0.3)
	OriginalGain float64

	// TranslatedGain is the nominal gain of synthesized speech
	// (default: 1.0)
	TranslatedGain float64

	// PromptGain is the nominal gain of welcome and waiting prompts
	// (default: 1.0)
	PromptGain float64

	// FadeOut is the ramp to silence used by StopAllAudio (default: 100ms)
	FadeOut time.Duration

	// CacheSize bounds the decode cache (default: 50)
	CacheSize int

	// DecodeWorkers bounds concurrent decodes; negative decodes inline
	// (default: 2)
	DecodeWorkers int

	// WrapRaw decodes telephony audio through a synthesized WAV header
	WrapRaw bool

	// Gap is the pause between items on a channel (default: 50ms)
	Gap time.Duration

	// Grace is added to the playback completion fallback (default: 1s)
	Grace time.Duration

	// SyncGap is the nominal translation offset (default: 200ms)
	SyncGap time.Duration

	// SyncLead is how far the original leads its translation
	// (default: 200ms)
	SyncLead time.Duration

	// MaxOriginal bounds accumulated receiver voice (default: 30s)
	MaxOriginal time.Duration

	// Clock maps server timestamps to local time (optional)
	Clock *clocksync.ClockSync

	// Fetcher downloads prompts; nil disables prompts
	Fetcher prompt.Fetcher

	// Language is the caller language used for prompts
	Language string

	// LoopDelay is the pause between waiting prompts (default: 3s)
	LoopDelay time.Duration

	// SafetyTimeout ends waiting when nobody answers (default: 60s)
	SafetyTimeout time.Duration

	// OnError receives non-fatal item and payload errors
	OnError func(error)

	// OnFatal is called once if the output device is unusable
	OnFatal func(error)

	// OnPromptState is called on prompt controller transitions
	OnPromptState func(prompt.State)

	// Logger receives session logs
	Logger *log.Logger
}

// SessionStats is a snapshot of every component's counters
type SessionStats struct {
	Original   playback.Stats
	Translated playback.Stats
	Prompt     playback.Stats
	Scheduler  scheduler.Stats
	Prompts    prompt.Stats
	Cache      cache.Stats
	Gains      Gains
	Degraded   bool
}

// Gains holds the current bus gains
type Gains struct {
	Original   float64
	Translated float64
	Prompt     float64
}

// Session is the audio engine of one call
type Session struct {
	id     string
	config SessionConfig
	logger *log.Logger
	output output.Output

	original   *mix.Bus
	translated *mix.Bus
	prompt     *mix.Bus

	originalCh   *playback.Channel
	translatedCh *playback.Channel
	promptCh     *playback.Channel

	cache     *cache.Cache
	decoder   *decode.Pool
	scheduler *scheduler.Scheduler
	prompts   *prompt.Controller

	mu        sync.Mutex
	fatal     error
	fatalOnce sync.Once
	stopMu    sync.Mutex
	closeOnce sync.Once

	timedOut     chan struct{}
	timedOutOnce sync.Once
}

// NewSession opens the output device and builds the pipeline. A device
// that cannot be opened puts the session in degraded mode: OnFatal fires
// once and every playback request fails fast, but messages are still
// processed.
func NewSession(config SessionConfig) *Session {
	if config.Output == nil {
		config.Output = output.NewOto()
	}
	if config.SampleRate == 0 {
		config.SampleRate = 48000
	}
	if config.OriginalGain == 0 {
		config.OriginalGain = 0.3
	}
	if config.TranslatedGain == 0 {
		config.TranslatedGain = 1.0
	}
	if config.PromptGain == 0 {
		config.PromptGain = 1.0
	}
	if config.FadeOut == 0 {
		config.FadeOut = 100 * time.Millisecond
	}
	if config.CacheSize == 0 {
		config.CacheSize = 50
	}
	if config.DecodeWorkers == 0 {
		config.DecodeWorkers = 2
	}
	logger := config.Logger
	if logger == nil {
		logger = log.WithPrefix("session")
	}

	s := &Session{
		id:         uuid.New().String(),
		config:     config,
		logger:     logger,
		output:     config.Output,
		original:   mix.NewBus(mix.BusOriginal, config.OriginalGain),
		translated: mix.NewBus(mix.BusTranslated, config.TranslatedGain),
		prompt:     mix.NewBus(mix.BusPrompt, config.PromptGain),
		cache:      cache.New(config.CacheSize),
		timedOut:   make(chan struct{}),
	}

	payloads := decode.NewPayloadDecoder(nil)
	payloads.WrapRaw = config.WrapRaw
	s.decoder = decode.NewPool(payloads, config.DecodeWorkers)

	s.originalCh = s.newChannel(s.original)
	s.translatedCh = s.newChannel(s.translated)
	s.promptCh = s.newChannel(s.prompt)

	s.scheduler = scheduler.New(s.originalCh, s.translatedCh, scheduler.Config{
		Gap:         config.SyncGap,
		Lead:        config.SyncLead,
		MaxOriginal: config.MaxOriginal,
		Clock:       config.Clock,
		Logger:      logger.WithPrefix("scheduler"),
	})

	if config.Fetcher != nil {
		s.prompts = prompt.New(config.Fetcher, s.promptCh, prompt.Config{
			Language:      config.Language,
			LoopDelay:     config.LoopDelay,
			SafetyTimeout: config.SafetyTimeout,
			OnTimeout:     s.onPromptTimeout,
			OnStateChange: config.OnPromptState,
			Logger:        logger.WithPrefix("prompt"),
		})
	}

	if err := s.output.Open(config.SampleRate, 1); err != nil {
		if !errors.Is(err, audio.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
		}
		s.onFatal(err)
	} else {
		logger.Info("Session started", "id", s.id, "rate", config.SampleRate)
	}

	return s
}

func (s *Session) newChannel(bus *mix.Bus) *playback.Channel {
	return playback.New(playback.Config{
		Bus:     bus,
		Output:  s.output,
		Decoder: s.decoder,
		Cache:   s.cache,
		Gap:     s.config.Gap,
		Grace:   s.config.Grace,
		Logger:  s.logger.WithPrefix("channel/" + bus.ID()),
		OnError: func(item playback.Item, err error) {
			s.reportError(fmt.Errorf("%s %s: %w", bus.ID(), item.Label, err))
		},
		OnFatal: s.onFatal,
	})
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Err returns the fatal device error, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

// onFatal disables every channel and reports err once
func (s *Session) onFatal(err error) {
	s.fatalOnce.Do(func() {
		s.mu.Lock()
		s.fatal = err
		s.mu.Unlock()

		s.logger.Error("Audio disabled for this session", "err", err)
		for _, ch := range s.channels() {
			ch.Disable(err)
		}
		if s.config.OnFatal != nil {
			s.config.OnFatal(err)
		}
	})
}

func (s *Session) reportError(err error) {
	if s.config.OnError != nil {
		s.config.OnError(err)
	}
}

func (s *Session) channels() []*playback.Channel {
	return []*playback.Channel{s.originalCh, s.translatedCh, s.promptCh}
}

func (s *Session) buses() []*mix.Bus {
	return []*mix.Bus{s.original, s.translated, s.prompt}
}

// QueueAudio plays synthesized speech on the translated channel. Real
// conversation audio ends the prompts. High priority audio preempts lower
// priority speech that is playing or queued.
func (s *Session) QueueAudio(p audio.Payload, priority audio.Priority) *playback.Result {
	s.StopPrompts()
	if priority >= audio.PriorityHigh {
		s.translatedCh.CancelBelow(priority)
	}
	return s.translatedCh.Enqueue(playback.Item{Payload: p, Priority: priority, Label: "queued"})
}

// PlayOriginalVoice plays original voice without offset
func (s *Session) PlayOriginalVoice(p audio.Payload) *playback.Result {
	s.StopPrompts()
	return s.scheduler.PlayOriginal(p)
}

// PlaySynchronizedPair plays an original and its translation offset from
// the production timestamp (Unix ms, 0 if unknown)
func (s *Session) PlaySynchronizedPair(original, translated audio.Payload, timestamp int64) scheduler.Pair {
	s.StopPrompts()
	return s.scheduler.PlayPair(original, translated, timestamp)
}

// SetVolumes sets the nominal original and translated gains
func (s *Session) SetVolumes(original, translated float64) {
	s.original.SetGain(original)
	s.translated.SetGain(translated)
	s.logger.Debug("Volumes set", "original", s.original.Nominal(), "translated", s.translated.Nominal())
}

// Gains returns the current gains
func (s *Session) Gains() Gains {
	return Gains{
		Original:   s.original.Gain(),
		Translated: s.translated.Gain(),
		Prompt:     s.prompt.Gain(),
	}
}

// StopAllAudio fades every bus out, stops and flushes every channel, drops
// held original voice, then restores nominal gains
func (s *Session) StopAllAudio() {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	s.StopPrompts()

	for _, b := range s.buses() {
		b.Duck(0, s.config.FadeOut)
	}
	if s.config.FadeOut > 0 && s.anyPlaying() {
		time.Sleep(s.config.FadeOut)
	}

	for _, ch := range s.channels() {
		ch.Stop()
	}
	s.scheduler.Reset()

	for _, b := range s.buses() {
		b.Restore()
	}
	s.logger.Debug("Stopped all audio")
}

func (s *Session) anyPlaying() bool {
	for _, ch := range s.channels() {
		if ch.IsPlaying() {
			return true
		}
	}
	return false
}

// PlayWelcome plays the welcome prompt and blocks until it ends
func (s *Session) PlayWelcome(ctx context.Context) error {
	if s.prompts == nil {
		return nil
	}
	return s.prompts.PlayWelcome(ctx)
}

// StartWaiting starts the waiting loop
func (s *Session) StartWaiting() error {
	if s.prompts == nil {
		return nil
	}
	return s.prompts.StartWaiting()
}

// StopPrompts ends welcome and waiting prompts. Idempotent.
func (s *Session) StopPrompts() {
	if s.prompts == nil {
		return
	}
	s.prompts.Stop()
}

// PromptState returns the prompt controller state
func (s *Session) PromptState() prompt.State {
	if s.prompts == nil {
		return prompt.StateStopped
	}
	return s.prompts.State()
}

// PromptTimeout is closed when waiting exceeds the safety timeout
func (s *Session) PromptTimeout() <-chan struct{} {
	return s.timedOut
}

func (s *Session) onPromptTimeout() {
	s.timedOutOnce.Do(func() { close(s.timedOut) })
}

// HandleMessage plays whatever audio msg carries. Control messages are
// accepted and ignored here. Payload errors are reported through OnError
// and returned.
func (s *Session) HandleMessage(msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.Transcription:
		return s.handleTranscription(m)

	case protocol.RawAudio:
		p, err := payloadFor(m.Data, audio.EncodingMulaw)
		if err != nil {
			return s.reject(protocol.TypeReceiverRawAudio, err)
		}
		s.StopPrompts()
		s.scheduler.AppendOriginal(p)

	case protocol.AudioChunk:
		p, err := payloadFor(m.Data, audio.EncodingMulaw)
		if err != nil {
			return s.reject(protocol.TypeAudioChunk, err)
		}
		if p.Empty() {
			return nil
		}
		// Chunks are normally TTS; a bare MPEG frame has no magic number
		if decode.Sniff(p.Data) != "" {
			p.Encoding = audio.EncodingContainer
		}
		if p.Encoding == audio.EncodingContainer {
			s.QueueAudio(p, audio.PriorityNormal)
		} else {
			s.PlayOriginalVoice(p)
		}

	case protocol.CallStatus, protocol.CallEnded, protocol.InitRequest, protocol.TimeSync:

	case protocol.Unknown:
		s.logger.Debug("Ignoring unknown message", "type", m.Type)

	default:
		s.logger.Warn("Unhandled message", "type", fmt.Sprintf("%T", msg))
	}
	return nil
}

func (s *Session) handleTranscription(m protocol.Transcription) error {
	translated, err := payloadFor(m.Audio, audio.EncodingContainer)
	if err != nil {
		return s.reject(protocol.Type(m), err)
	}
	original, err := payloadFor(m.OriginalAudio, audio.EncodingMulaw)
	if err != nil {
		return s.reject(protocol.Type(m), err)
	}

	if m.Final && !translated.Empty() {
		s.StopPrompts()
	}

	s.scheduler.HandleTurn(scheduler.Turn{
		Source:     scheduler.Source(m.Source),
		Final:      m.Final,
		Translated: translated,
		Original:   original,
		Timestamp:  m.Timestamp,
	})
	return nil
}

func (s *Session) reject(kind string, err error) error {
	err = fmt.Errorf("%s: %w", kind, err)
	s.logger.Error("Dropping payload", "err", err)
	s.reportError(err)
	return err
}

// payloadFor decodes transport text. Bytes carrying a container magic
// number are tagged as container audio, anything else as fallback.
func payloadFor(text string, fallback audio.Encoding) (audio.Payload, error) {
	if text == "" {
		return audio.Payload{}, nil
	}
	data, err := decode.Transport(text)
	if err != nil {
		return audio.Payload{}, err
	}
	enc := fallback
	if fallback != audio.EncodingContainer && decode.Signature(data) {
		enc = audio.EncodingContainer
	}
	return audio.Payload{Data: data, Encoding: enc}, nil
}

// Stats returns a snapshot of all counters
func (s *Session) Stats() SessionStats {
	st := SessionStats{
		Original:   s.originalCh.Stats(),
		Translated: s.translatedCh.Stats(),
		Prompt:     s.promptCh.Stats(),
		Scheduler:  s.scheduler.Stats(),
		Cache:      s.cache.Stats(),
		Gains:      s.Gains(),
		Degraded:   s.Err() != nil,
	}
	if s.prompts != nil {
		st.Prompts = s.prompts.Stats()
	}
	return st
}

// Close stops everything and releases the device. Safe to call more than
// once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.StopPrompts()
		for _, ch := range s.channels() {
			ch.Close()
		}
		if s.Err() == nil {
			err = s.output.Close()
		}
		s.logger.Info("Session closed", "id", s.id)
	})
	return err
}
