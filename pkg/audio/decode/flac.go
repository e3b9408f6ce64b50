// ABOUTME: FLAC decoder implementation
// ABOUTME: Decodes complete FLAC files using mewkiz/flac
package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Evatrad/evatrad-go/pkg/audio"
	"github.com/mewkiz/flac"
)

// FLACDecoder decodes FLAC files
type FLACDecoder struct{}

// Decode decodes every frame of a FLAC stream
func (d *FLACDecoder) Decode(ctx context.Context, data []byte) (*audio.Buffer, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: flac: %v", audio.ErrCorruptPayload, err)
	}
	defer stream.Close()

	info := stream.Info
	channels := int(info.NChannels)
	if channels == 0 || info.BitsPerSample == 0 {
		return nil, fmt.Errorf("%w: flac stream info incomplete", audio.ErrCorruptPayload)
	}
	scale := float32(int64(1) << (info.BitsPerSample - 1))

	samples := make([]float32, 0, int(info.NSamples)*channels)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: flac frame: %v", audio.ErrCorruptPayload, err)
		}

		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, audio.Clamp(float32(frame.Subframes[ch].Samples[i])/scale))
			}
		}
	}

	return &audio.Buffer{Samples: samples, SampleRate: int(info.SampleRate), Channels: channels}, nil
}
