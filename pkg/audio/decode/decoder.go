// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for container decoders and the payload dispatcher
package decode

import (
	"context"
	"fmt"

	"github.com/Evatrad/evatrad-go/pkg/audio"
)

// Decoder decodes a complete audio file to a PCM buffer
type Decoder interface {
	// Decode converts encoded audio data to PCM. Implementations return
	// errors wrapping audio.ErrUnsupportedFormat or audio.ErrCorruptPayload.
	Decode(ctx context.Context, data []byte) (*audio.Buffer, error)
}

// PayloadDecoder dispatches a Payload to the right decode path
type PayloadDecoder struct {
	// Container handles EncodingContainer payloads
	Container Decoder

	// WrapRaw routes raw telephony audio through a synthesized WAV header
	// and the container decoder instead of the direct table path. Used when
	// the container decoder is the only trusted PCM path.
	WrapRaw bool
}

// NewPayloadDecoder creates a dispatcher backed by dec
func NewPayloadDecoder(dec Decoder) *PayloadDecoder {
	if dec == nil {
		dec = NewContainer()
	}
	return &PayloadDecoder{Container: dec}
}

// Decode converts p to mono PCM at its native rate
func (d *PayloadDecoder) Decode(ctx context.Context, p audio.Payload) (*audio.Buffer, error) {
	switch p.Encoding {
	case audio.EncodingContainer:
		buf, err := d.Container.Decode(ctx, p.Data)
		if err != nil {
			return nil, err
		}
		return buf.Mono(), nil

	case audio.EncodingMulaw:
		if !d.WrapRaw {
			return Mulaw(p.Data), nil
		}
		return d.wrapped(ctx, PCM16Bytes(MulawToPCM16(p.Data)))

	case audio.EncodingPCM16:
		if !d.WrapRaw {
			return PCM16(p.Data, audio.TelephonyRate)
		}
		if len(p.Data)%2 != 0 {
			return nil, fmt.Errorf("%w: odd PCM16 length %d", audio.ErrCorruptPayload, len(p.Data))
		}
		return d.wrapped(ctx, p.Data)

	default:
		return nil, fmt.Errorf("%w: encoding %d", audio.ErrUnsupportedFormat, int(p.Encoding))
	}
}

// wrapped prepends a WAV header to PCM16 bytes and runs the container path
func (d *PayloadDecoder) wrapped(ctx context.Context, pcm []byte) (*audio.Buffer, error) {
	header, err := SynthesizeHeader(len(pcm)/2, audio.EncodingPCM16)
	if err != nil {
		return nil, err
	}
	file := make([]byte, 0, len(header)+len(pcm))
	file = append(file, header...)
	file = append(file, pcm...)
	return d.Container.Decode(ctx, file)
}
