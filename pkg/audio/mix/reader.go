// ABOUTME: Gain-applying PCM reader
// ABOUTME: Streams a buffer as float32 bytes scaled by the live bus gain
package mix

import (
	"encoding/binary"
	"io"
	"math"
	"sync/atomic"

	"github.com/Evatrad/evatrad-go/pkg/audio"
)

// bytesPerSample is the size of one float32LE sample
const bytesPerSample = 4

// Reader streams samples through a bus. The gain is sampled on every Read
// so ramps affect audio that is already playing.
type Reader struct {
	bus     *Bus
	samples []float32
	pos     int
	read    atomic.Int64
}

// NewReader creates a reader over buf routed through bus
func (b *Bus) NewReader(buf *audio.Buffer) *Reader {
	var samples []float32
	if buf != nil {
		samples = buf.Samples
	}
	return &Reader{bus: b, samples: samples}
}

// Read fills p with little-endian float32 samples
func (r *Reader) Read(p []byte) (int, error) {
	if r.pos >= len(r.samples) {
		return 0, io.EOF
	}

	gain := float32(r.bus.Gain())
	n := 0
	for n+bytesPerSample <= len(p) && r.pos < len(r.samples) {
		s := audio.Clamp(r.samples[r.pos] * gain)
		binary.LittleEndian.PutUint32(p[n:], math.Float32bits(s))
		n += bytesPerSample
		r.pos++
	}
	r.read.Add(int64(n))
	return n, nil
}

// Len returns the total stream length in bytes
func (r *Reader) Len() int {
	return len(r.samples) * bytesPerSample
}

// BytesRead returns how many bytes have been consumed so far
func (r *Reader) BytesRead() int64 {
	return r.read.Load()
}
