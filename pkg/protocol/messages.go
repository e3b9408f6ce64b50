// ABOUTME: Bridge protocol message variants
// ABOUTME: Decodes flat JSON frames into a closed set of typed messages
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Wire type names
const (
	TypeTranscriptionFinal   = "transcription-final"
	TypeTranscriptionInterim = "transcription-interim"
	TypeReceiverRawAudio     = "receiver_raw_audio"
	TypeAudioChunk           = "audio_chunk"
	TypeCallStatus           = "call_status"
	TypeCallEnded            = "call_ended"
	TypeInit                 = "init"
	TypeTimeSync             = "time-sync"
	TypeAudio                = "audio"
)

// Message is one inbound frame. The concrete type is one of Transcription,
// RawAudio, AudioChunk, CallStatus, CallEnded, InitRequest, TimeSync or
// Unknown.
type Message interface {
	messageType() string
}

// Transcription carries caption text and optional synthesized speech
type Transcription struct {
	Final          bool
	Source         string // "caller" or "receiver"
	OriginalText   string
	TranslatedText string
	// Audio is base64 container audio of the translation
	Audio string
	// OriginalAudio is base64 original voice sent inline (rare)
	OriginalAudio string
	// Timestamp is the server production time in Unix milliseconds
	Timestamp int64
}

// RawAudio is a base64 mu-law chunk of the receiver's voice
type RawAudio struct {
	Data string
}

// AudioChunk is base64 audio to play directly
type AudioChunk struct {
	Data   string
	Source string
}

// CallStatus reports a telephony status change
type CallStatus struct {
	Status string
}

// CallEnded means the server hung up
type CallEnded struct {
	Reason string
}

// InitRequest asks the client to identify its call
type InitRequest struct{}

// TimeSync is the server's answer to a time-sync request
type TimeSync struct {
	ClientTime int64
	ServerTime int64
}

// Unknown is any frame with an unrecognized type
type Unknown struct {
	Type string
	Raw  []byte
}

func (Transcription) messageType() string {
	return TypeTranscriptionFinal
}
func (RawAudio) messageType() string    { return TypeReceiverRawAudio }
func (AudioChunk) messageType() string  { return TypeAudioChunk }
func (CallStatus) messageType() string  { return TypeCallStatus }
func (CallEnded) messageType() string   { return TypeCallEnded }
func (InitRequest) messageType() string { return TypeInit }
func (TimeSync) messageType() string    { return TypeTimeSync }
func (u Unknown) messageType() string   { return u.Type }

// Type returns the wire type name of msg
func Type(msg Message) string {
	if t, ok := msg.(Transcription); ok && !t.Final {
		return TypeTranscriptionInterim
	}
	return msg.messageType()
}

// envelope is the union of every inbound field
type envelope struct {
	Type           string          `json:"type"`
	Source         string          `json:"source"`
	OriginalText   string          `json:"originalText"`
	TranslatedText string          `json:"translatedText"`
	AudioBase64    string          `json:"audioBase64"`
	OriginalAudio  string          `json:"originalAudioBuffer"`
	Data           string          `json:"data"`
	Timestamp      json.RawMessage `json:"timestamp"`
	Status         string          `json:"status"`
	Reason         string          `json:"reason"`
	ClientTime     json.RawMessage `json:"clientTime"`
	ServerTime     json.RawMessage `json:"serverTime"`
}

// normalizeType folds the dash/underscore spellings the server uses
func normalizeType(t string) string {
	switch t {
	case "call-status":
		return TypeCallStatus
	case "call-ended":
		return TypeCallEnded
	case "receiver-raw-audio":
		return TypeReceiverRawAudio
	case "audio-chunk":
		return TypeAudioChunk
	case "time_sync":
		return TypeTimeSync
	default:
		return t
	}
}

// Decode parses one frame
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	switch normalizeType(env.Type) {
	case TypeTranscriptionFinal, TypeTranscriptionInterim:
		return Transcription{
			Final:          env.Type == TypeTranscriptionFinal,
			Source:         env.Source,
			OriginalText:   env.OriginalText,
			TranslatedText: env.TranslatedText,
			Audio:          env.AudioBase64,
			OriginalAudio:  env.OriginalAudio,
			Timestamp:      millis(env.Timestamp, "timestamp"),
		}, nil

	case TypeReceiverRawAudio:
		data := env.Data
		if data == "" {
			data = env.AudioBase64
		}
		return RawAudio{Data: data}, nil

	case TypeAudioChunk:
		data := env.AudioBase64
		if data == "" {
			data = env.Data
		}
		return AudioChunk{Data: data, Source: env.Source}, nil

	case TypeCallStatus:
		return CallStatus{Status: strings.ToLower(env.Status)}, nil

	case TypeCallEnded:
		return CallEnded{Reason: env.Reason}, nil

	case TypeInit:
		return InitRequest{}, nil

	case TypeTimeSync:
		return TimeSync{
			ClientTime: millis(env.ClientTime, "clientTime"),
			ServerTime: millis(env.ServerTime, "serverTime"),
		}, nil

	default:
		return Unknown{Type: env.Type, Raw: append([]byte(nil), data...)}, nil
	}
}

// millis parses an optional timestamp field. A value that cannot be parsed
// is logged and read as 0, which callers treat as unknown.
func millis(raw json.RawMessage, field string) int64 {
	if len(raw) == 0 {
		return 0
	}
	var m Millis
	if err := json.Unmarshal(raw, &m); err != nil {
		log.Warn("Ignoring unparseable timestamp", "field", field, "err", err)
		return 0
	}
	return int64(m)
}

// Millis is a Unix millisecond timestamp that also accepts numeric strings
// and RFC 3339 times on the wire
type Millis int64

// UnmarshalJSON implements json.Unmarshaler
func (m *Millis) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		*m = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %s: %w", s, err)
		}
		if n, err := strconv.ParseFloat(unquoted, 64); err == nil {
			*m = Millis(n)
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, unquoted)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", unquoted, err)
		}
		*m = Millis(t.UnixMilli())
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", s, err)
	}
	*m = Millis(n)
	return nil
}

// Outbound frames

// Init identifies the call this socket belongs to
type Init struct {
	Type    string `json:"type"`
	CallSid string `json:"callSid"`
}

// Audio carries captured caller audio to the bridge
type Audio struct {
	Type     string `json:"type"`
	Audio    string `json:"audio"`
	Source   string `json:"source"`
	Language string `json:"language,omitempty"`
}

// TimeSyncRequest starts a clock sync exchange
type TimeSyncRequest struct {
	Type       string `json:"type"`
	ClientTime int64  `json:"clientTime"`
}
