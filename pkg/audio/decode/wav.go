// ABOUTME: WAV container header synthesis and parsing
// ABOUTME: Lets raw telephony samples travel through the container decoder
package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Evatrad/evatrad-go/pkg/audio"
)

const (
	wavHeaderSize = 44

	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatMulaw      = 7
	wavFormatExtensible = 0xFFFE
)

// wavHeader is the canonical 44-byte RIFF/WAVE header
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// SynthesizeHeader builds a mono 8 kHz WAV header for sampleCount raw
// telephony samples. The bit depth and format tag follow the source encoding:
// mu-law is 8-bit format 7, PCM16 is 16-bit format 1.
func SynthesizeHeader(sampleCount int, source audio.Encoding) ([]byte, error) {
	if sampleCount < 0 {
		return nil, fmt.Errorf("negative sample count %d", sampleCount)
	}

	var format, bits uint16
	switch source {
	case audio.EncodingMulaw:
		format, bits = wavFormatMulaw, 8
	case audio.EncodingPCM16:
		format, bits = wavFormatPCM, 16
	default:
		return nil, fmt.Errorf("%w: no raw header for %s", audio.ErrUnsupportedFormat, source)
	}

	blockAlign := bits / 8
	dataSize := uint32(sampleCount) * uint32(blockAlign)

	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   format,
		NumChannels:   1,
		SampleRate:    audio.TelephonyRate,
		ByteRate:      audio.TelephonyRate * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: bits,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	return buf.Bytes(), nil
}

type wavFormat struct {
	tag        uint16
	channels   int
	sampleRate int
	bits       int
}

// decodeWAV walks the RIFF chunks and decodes the data chunk
func decodeWAV(data []byte) (*audio.Buffer, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", audio.ErrUnsupportedFormat)
	}

	var format *wavFormat
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4:]))
		body := pos + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, fmt.Errorf("%w: short fmt chunk", audio.ErrCorruptPayload)
			}
			f := &wavFormat{
				tag:        binary.LittleEndian.Uint16(data[body:]),
				channels:   int(binary.LittleEndian.Uint16(data[body+2:])),
				sampleRate: int(binary.LittleEndian.Uint32(data[body+4:])),
				bits:       int(binary.LittleEndian.Uint16(data[body+14:])),
			}
			if f.tag == wavFormatExtensible && size >= 26 && body+26 <= len(data) {
				// First two bytes of the sub-format GUID carry the real tag
				f.tag = binary.LittleEndian.Uint16(data[body+24:])
			}
			format = f

		case "data":
			if format == nil {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", audio.ErrCorruptPayload)
			}
			end := body + size
			// Streaming writers leave the size open; take what is there
			if size < 0 || end > len(data) || end < body {
				end = len(data)
			}
			return format.decode(data[body:end])
		}

		pos = body + size
		if size%2 == 1 {
			pos++
		}
		if pos < body {
			break
		}
	}

	return nil, fmt.Errorf("%w: no data chunk", audio.ErrCorruptPayload)
}

func (f *wavFormat) decode(pcm []byte) (*audio.Buffer, error) {
	if f.channels <= 0 || f.sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid WAV format %d ch %d Hz", audio.ErrCorruptPayload, f.channels, f.sampleRate)
	}

	var samples []float32
	var err error

	switch f.tag {
	case wavFormatPCM:
		samples, err = decodeLinear(pcm, f.bits)
	case wavFormatMulaw:
		samples = Mulaw(pcm).Samples
	case wavFormatFloat:
		if f.bits != 32 {
			return nil, fmt.Errorf("%w: float WAV with %d bits", audio.ErrUnsupportedFormat, f.bits)
		}
		samples = make([]float32, len(pcm)/4)
		for i := range samples {
			samples[i] = audio.Clamp(math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4:])))
		}
	default:
		return nil, fmt.Errorf("%w: WAV format tag %d", audio.ErrUnsupportedFormat, f.tag)
	}
	if err != nil {
		return nil, err
	}

	// Drop a trailing partial frame
	samples = samples[:len(samples)-len(samples)%f.channels]

	buf := &audio.Buffer{Samples: samples, SampleRate: f.sampleRate, Channels: f.channels}
	return buf, nil
}
