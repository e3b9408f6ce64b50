// ABOUTME: Container format sniffing
// ABOUTME: Routes complete audio files to the WAV, FLAC, Opus or MP3 decoder
package decode

import (
	"bytes"
	"context"
	"fmt"

	"github.com/Evatrad/evatrad-go/pkg/audio"
)

// Container decodes self-describing audio files by sniffing their magic bytes
type Container struct {
	mp3  Decoder
	flac Decoder
	opus Decoder
}

// NewContainer creates a container decoder with all known formats
func NewContainer() *Container {
	return &Container{
		mp3:  &MP3Decoder{},
		flac: &FLACDecoder{},
		opus: &OpusDecoder{},
	}
}

// Decode sniffs data and decodes it with the matching format decoder
func (c *Container) Decode(ctx context.Context, data []byte) (*audio.Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty container", audio.ErrCorruptPayload)
	}

	var (
		buf *audio.Buffer
		err error
	)
	switch Sniff(data) {
	case "wav":
		buf, err = decodeWAV(data)
	case "flac":
		buf, err = c.flac.Decode(ctx, data)
	case "opus":
		buf, err = c.opus.Decode(ctx, data)
	case "mp3":
		buf, err = c.mp3.Decode(ctx, data)
	default:
		return nil, fmt.Errorf("%w: unrecognized container (% x)", audio.ErrUnsupportedFormat, data[:min(len(data), 4)])
	}
	if err != nil {
		return nil, err
	}
	if buf.SampleRate <= 0 || buf.Channels <= 0 {
		return nil, fmt.Errorf("%w: decoded stream has no format", audio.ErrCorruptPayload)
	}
	return buf, nil
}

// Sniff names the container format of data: wav, flac, opus, mp3 or ""
func Sniff(data []byte) string {
	switch {
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WAVE":
		return "wav"
	case bytes.HasPrefix(data, []byte("fLaC")):
		return "flac"
	case bytes.HasPrefix(data, []byte("OggS")):
		if bytes.Contains(data[:min(len(data), 128)], []byte("OpusHead")) {
			return "opus"
		}
		return ""
	case bytes.HasPrefix(data, []byte("ID3")):
		return "mp3"
	case mpegFrame(data):
		return "mp3"
	default:
		return ""
	}
}

// mpegFrame reports whether data starts with a plausible MPEG audio frame
// header. Runs of 0xFF are mu-law silence, so reserved and free-format
// fields are rejected rather than trusting the sync bits alone.
func mpegFrame(data []byte) bool {
	if len(data) < 4 || data[0] != 0xFF || data[1]&0xE0 != 0xE0 {
		return false
	}
	version := (data[1] >> 3) & 0x03
	layer := (data[1] >> 1) & 0x03
	bitrate := data[2] >> 4
	rate := (data[2] >> 2) & 0x03
	return version != 1 && layer != 0 && bitrate != 0 && bitrate != 0x0F && rate != 3
}

// Signature reports whether data carries an unambiguous container magic
// number. A bare MPEG frame sync does not count.
func Signature(data []byte) bool {
	switch Sniff(data) {
	case "wav", "flac", "opus":
		return true
	case "mp3":
		return bytes.HasPrefix(data, []byte("ID3"))
	default:
		return false
	}
}
