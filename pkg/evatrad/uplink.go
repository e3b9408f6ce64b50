// ABOUTME: Caller audio uplink
// ABOUTME: Encodes PCM to telephony bytes and sends it in paced chunks
package evatrad

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/Evatrad/evatrad-go/pkg/audio"
	"github.com/Evatrad/evatrad-go/pkg/audio/encode"
)

// AudioSender forwards encoded caller audio. *protocol.Client satisfies it.
type AudioSender interface {
	SendAudio(data, source, language string) error
}

// Uplink streams caller audio to the bridge
type Uplink struct {
	sender   AudioSender
	encoder  encode.Encoder
	language string

	// Chunk is the audio length per frame (default: 100ms)
	Chunk time.Duration

	// Pace sends frames in real time instead of all at once
	Pace bool
}

// NewUplink creates an uplink. A nil encoder means mu-law.
func NewUplink(sender AudioSender, encoder encode.Encoder, language string) *Uplink {
	if encoder == nil {
		encoder = encode.NewMulaw()
	}
	return &Uplink{
		sender:   sender,
		encoder:  encoder,
		language: language,
		Chunk:    100 * time.Millisecond,
		Pace:     true,
	}
}

// Send encodes buf and sends it as caller audio. It returns the number of
// frames sent.
func (u *Uplink) Send(ctx context.Context, buf *audio.Buffer) (int, error) {
	data, err := u.encoder.Encode(buf)
	if err != nil {
		return 0, fmt.Errorf("encode caller audio: %w", err)
	}

	bytesPerSample := 1
	if u.encoder.Encoding() == audio.EncodingPCM16 {
		bytesPerSample = 2
	}
	chunk := int(u.Chunk*audio.TelephonyRate/time.Second) * bytesPerSample
	if chunk <= 0 {
		chunk = len(data)
	}

	var ticker *time.Ticker
	if u.Pace {
		ticker = time.NewTicker(u.Chunk)
		defer ticker.Stop()
	}

	frames := 0
	for off := 0; off < len(data); off += chunk {
		end := min(off+chunk, len(data))
		text := base64.StdEncoding.EncodeToString(data[off:end])
		if err := u.sender.SendAudio(text, "caller", u.language); err != nil {
			return frames, fmt.Errorf("send caller audio: %w", err)
		}
		frames++

		if ticker != nil && end < len(data) {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return frames, ctx.Err()
			}
		}
	}
	return frames, nil
}
