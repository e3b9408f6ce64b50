// ABOUTME: Silent real-time audio output
// ABOUTME: Consumes voices at playback speed without a sound card
package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Evatrad/evatrad-go/pkg/audio"
)

// nullTick is the pacing granularity of the silent device
const nullTick = 20 * time.Millisecond

// Null plays nothing but takes as long as real playback would. Used for
// headless runs and when no sound card is present.
type Null struct {
	mu         sync.Mutex
	sampleRate int
	channels   int
	open       bool
}

// NewNull creates a silent output
func NewNull() *Null {
	return &Null{}
}

// Open records the format
func (n *Null) Open(sampleRate, channels int) error {
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("%w: invalid format %dHz/%dch", audio.ErrDeviceUnavailable, sampleRate, channels)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sampleRate = sampleRate
	n.channels = channels
	n.open = true
	return nil
}

// Start drains r at real-time pace
func (n *Null) Start(r io.Reader) (Voice, error) {
	n.mu.Lock()
	if !n.open {
		n.mu.Unlock()
		return nil, fmt.Errorf("%w: output not initialized", audio.ErrDeviceUnavailable)
	}
	chunk := n.sampleRate * n.channels * bytesPerSample * int(nullTick/time.Millisecond) / 1000
	n.mu.Unlock()

	v := newVoice()
	go func() {
		defer v.finish()

		buf := make([]byte, max(chunk, bytesPerSample))
		ticker := time.NewTicker(nullTick)
		defer ticker.Stop()

		for {
			// EOF, a short final chunk or a read error all end the voice
			if _, err := io.ReadFull(r, buf); err != nil {
				return
			}
			select {
			case <-v.stop:
				return
			case <-ticker.C:
			}
		}
	}()
	return v, nil
}

// SampleRate returns the device rate
func (n *Null) SampleRate() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sampleRate
}

// Close marks the device closed
func (n *Null) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.open = false
	return nil
}
