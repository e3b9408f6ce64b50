// ABOUTME: Turn pairing and dispatch to playback channels
// ABOUTME: Accumulates raw receiver audio until its translation arrives
package scheduler

import (
	"sync"
	"time"

	"github.com/Evatrad/evatrad-go/pkg/audio"
	"github.com/Evatrad/evatrad-go/pkg/playback"
	clocksync "github.com/Evatrad/evatrad-go/pkg/sync"
	"github.com/charmbracelet/log"
)

// Enqueuer accepts playback items. *playback.Channel satisfies it.
type Enqueuer interface {
	Enqueue(item playback.Item) *playback.Result
}

// Source identifies the speaker of a turn
type Source string

const (
	SourceCaller   Source = "caller"
	SourceReceiver Source = "receiver"
)

// Turn is one transcription event with its optional synthesized audio
type Turn struct {
	Source Source
	Final  bool

	// Translated is the synthesized translation (may be empty)
	Translated audio.Payload

	// Original optionally carries the original voice inline
	Original audio.Payload

	// Timestamp is the server production time in Unix milliseconds (0 if
	// unknown)
	Timestamp int64
}

// Config holds scheduler configuration
type Config struct {
	// Gap is the nominal translation offset (default: 200ms)
	Gap time.Duration

	// Lead is how far the original starts ahead of the translation
	// (default: 200ms)
	Lead time.Duration

	// MaxOriginal bounds accumulated raw receiver audio (default: 30s)
	MaxOriginal time.Duration

	// Clock maps server timestamps to local time (optional)
	Clock *clocksync.ClockSync

	// Logger receives scheduler logs
	Logger *log.Logger

	now func() time.Time
}

// Stats contains scheduler counters
type Stats struct {
	Pairs       int64
	Solo        int64
	Caller      int64
	Immediate   int64
	Late        int64
	TextOnly    int64
	OriginalLen time.Duration
}

// Pair holds the results of a dispatched turn. Either may be nil.
type Pair struct {
	Original    *playback.Result
	Translation *playback.Result
	Delays      Delays
}

// Scheduler pairs and times original and translated voice
type Scheduler struct {
	config     Config
	original   Enqueuer
	translated Enqueuer
	logger     *log.Logger

	mu sync.Mutex
	// raw mu-law receiver audio since the last paired turn
	pendingRaw []byte
	// latest self-describing original, replaces raw accumulation
	pendingFile *audio.Payload
	stats       Stats
}

// New creates a scheduler dispatching to the two channels
func New(original, translated Enqueuer, config Config) *Scheduler {
	if config.Gap == 0 {
		config.Gap = 200 * time.Millisecond
	}
	if config.Lead == 0 {
		config.Lead = 200 * time.Millisecond
	}
	if config.MaxOriginal == 0 {
		config.MaxOriginal = 30 * time.Second
	}
	if config.now == nil {
		config.now = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = log.WithPrefix("scheduler")
	}

	return &Scheduler{
		config:     config,
		original:   original,
		translated: translated,
		logger:     logger,
	}
}

// DelaysFor computes offsets for a production timestamp. A zero timestamp
// yields zero delays.
func (s *Scheduler) DelaysFor(timestamp int64) Delays {
	if timestamp == 0 {
		return Delays{}
	}
	produced := time.UnixMilli(timestamp)
	if s.config.Clock != nil {
		produced = s.config.Clock.ServerToLocal(timestamp)
	}
	elapsed := s.config.now().Sub(produced)
	return ComputeDelays(elapsed, s.config.Gap, s.config.Lead)
}

// PlayPair dispatches an original and its translation with computed
// offsets. An empty payload on either side is skipped.
func (s *Scheduler) PlayPair(original, translated audio.Payload, timestamp int64) Pair {
	d := s.DelaysFor(timestamp)
	now := s.config.now()

	s.mu.Lock()
	switch {
	case timestamp == 0:
		s.stats.Immediate++
	case d.Translation == 0:
		s.stats.Late++
	}
	if original.Empty() {
		s.stats.Solo++
	} else {
		s.stats.Pairs++
	}
	s.mu.Unlock()

	s.logger.Debug("Dispatching turn",
		"original_delay", d.Original, "translation_delay", d.Translation,
		"has_original", !original.Empty(), "has_translation", !translated.Empty())

	pair := Pair{Delays: d}
	if !original.Empty() {
		pair.Original = s.original.Enqueue(playback.Item{
			Payload:    original,
			Priority:   audio.PriorityNormal,
			EnqueuedAt: now,
			Delay:      d.Original,
			Label:      "original",
		})
	}
	if !translated.Empty() {
		pair.Translation = s.translated.Enqueue(playback.Item{
			Payload:    translated,
			Priority:   audio.PriorityNormal,
			EnqueuedAt: now,
			Delay:      d.Translation,
			Label:      "translation",
		})
	}
	return pair
}

// PlayOriginal queues original voice with no offset
func (s *Scheduler) PlayOriginal(p audio.Payload) *playback.Result {
	return s.original.Enqueue(playback.Item{Payload: p, Priority: audio.PriorityNormal, Label: "original"})
}

// AppendOriginal records receiver voice for the next receiver turn. Raw
// mu-law accumulates up to MaxOriginal, dropping the oldest audio; any other
// encoding replaces what was held.
func (s *Scheduler) AppendOriginal(p audio.Payload) {
	if p.Empty() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Encoding != audio.EncodingMulaw {
		s.pendingRaw = nil
		s.pendingFile = &p
		return
	}

	s.pendingFile = nil
	s.pendingRaw = append(s.pendingRaw, p.Data...)
	limit := int(s.config.MaxOriginal * audio.TelephonyRate / time.Second)
	if limit > 0 && len(s.pendingRaw) > limit {
		s.pendingRaw = append([]byte(nil), s.pendingRaw[len(s.pendingRaw)-limit:]...)
	}
}

// TakeOriginal returns and clears the held receiver voice
func (s *Scheduler) TakeOriginal() audio.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingFile != nil {
		p := *s.pendingFile
		s.pendingFile = nil
		return p
	}
	if len(s.pendingRaw) == 0 {
		return audio.Payload{}
	}
	p := audio.Payload{Data: s.pendingRaw, Encoding: audio.EncodingMulaw}
	s.pendingRaw = nil
	return p
}

// HandleTurn schedules whatever audio a transcription event carries.
// Text-only events play nothing and leave held original voice in place.
func (s *Scheduler) HandleTurn(t Turn) Pair {
	if t.Translated.Empty() {
		s.mu.Lock()
		s.stats.TextOnly++
		s.mu.Unlock()
		return Pair{}
	}
	if !t.Final {
		return Pair{}
	}

	switch t.Source {
	case SourceCaller:
		s.mu.Lock()
		s.stats.Caller++
		s.mu.Unlock()
		res := s.translated.Enqueue(playback.Item{
			Payload:  t.Translated,
			Priority: audio.PriorityNormal,
			Label:    "caller-translation",
		})
		return Pair{Translation: res}

	default:
		original := t.Original
		if original.Empty() {
			original = s.TakeOriginal()
		} else {
			s.TakeOriginal()
		}
		return s.PlayPair(original, t.Translated, t.Timestamp)
	}
}

// Reset drops held original voice
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingRaw = nil
	s.pendingFile = nil
}

// Stats returns a snapshot of the counters
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.OriginalLen = time.Duration(len(s.pendingRaw)) * time.Second / audio.TelephonyRate
	return st
}
