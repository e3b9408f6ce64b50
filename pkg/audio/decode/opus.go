// ABOUTME: Ogg Opus decoder implementation
// ABOUTME: Decodes complete Ogg Opus files using libopusfile bindings
package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Evatrad/evatrad-go/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

const (
	// opusRate is the fixed output rate of libopusfile
	opusRate = 48000

	// opusFrameSamples is 120ms at 48 kHz, the largest Opus frame
	opusFrameSamples = 5760
)

// OpusDecoder decodes Ogg Opus files
type OpusDecoder struct{}

// Decode decodes an Ogg Opus file
func (d *OpusDecoder) Decode(ctx context.Context, data []byte) (*audio.Buffer, error) {
	channels := opusChannels(data)
	if channels == 0 {
		return nil, fmt.Errorf("%w: missing OpusHead", audio.ErrCorruptPayload)
	}

	stream, err := opus.NewStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: opus: %v", audio.ErrCorruptPayload, err)
	}
	defer stream.Close()

	var samples []float32
	pcm := make([]int16, opusFrameSamples*channels)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := stream.Read(pcm)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: opus: %v", audio.ErrCorruptPayload, err)
		}
		if n == 0 {
			break
		}
		// n is samples per channel
		for _, s := range pcm[:n*channels] {
			samples = append(samples, audio.SampleFromInt16(s))
		}
	}

	return &audio.Buffer{Samples: samples, SampleRate: opusRate, Channels: channels}, nil
}

// opusChannels reads the channel count from the OpusHead identification
// header, returning 0 when it cannot be found
func opusChannels(data []byte) int {
	idx := bytes.Index(data, []byte("OpusHead"))
	if idx < 0 || idx+10 > len(data) {
		return 0
	}
	return int(data[idx+9])
}
