// ABOUTME: MP3 decoder implementation
// ABOUTME: Decodes complete MP3 files using go-mp3
package decode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Evatrad/evatrad-go/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// mp3ReadChunk is the byte count read between context checks
const mp3ReadChunk = 16 * 1024

// MP3Decoder decodes MP3 files
type MP3Decoder struct{}

// Decode decodes an MP3 file. go-mp3 always yields 16-bit stereo.
func (d *MP3Decoder) Decode(ctx context.Context, data []byte) (*audio.Buffer, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: mp3: %v", audio.ErrCorruptPayload, err)
	}

	pcm := make([]byte, 0, max(int(decoder.Length()), 0))
	chunk := make([]byte, mp3ReadChunk)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := decoder.Read(chunk)
		pcm = append(pcm, chunk[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: mp3: %v", audio.ErrCorruptPayload, err)
		}
		if n == 0 {
			break
		}
	}

	numSamples := len(pcm) / 2
	numSamples -= numSamples % 2
	samples := make([]float32, numSamples)
	for i := range samples {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	return &audio.Buffer{Samples: samples, SampleRate: decoder.SampleRate(), Channels: 2}, nil
}
