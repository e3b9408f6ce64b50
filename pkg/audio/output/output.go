// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for audio playback backends
package output

import (
	"io"
	"sync"
)

// Output represents an audio output device
type Output interface {
	// Open initializes the output device. Failures wrap
	// audio.ErrDeviceUnavailable.
	Open(sampleRate, channels int) error

	// Start plays float32LE samples from r as a new voice
	Start(r io.Reader) (Voice, error)

	// SampleRate returns the rate the device was opened at
	SampleRate() int

	// Close releases output resources
	Close() error
}

// Voice is one playing stream
type Voice interface {
	// Done is closed when playback ends, naturally or by Stop
	Done() <-chan struct{}

	// Stop ends playback immediately. Safe to call more than once.
	Stop()
}

// voice is the Done/Stop plumbing shared by the backends
type voice struct {
	done     chan struct{}
	stop     chan struct{}
	doneOnce sync.Once
	stopOnce sync.Once
}

func newVoice() *voice {
	return &voice{
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
}

func (v *voice) Done() <-chan struct{} {
	return v.done
}

func (v *voice) Stop() {
	v.stopOnce.Do(func() { close(v.stop) })
}

func (v *voice) finish() {
	v.doneOnce.Do(func() { close(v.done) })
}

// bytesPerSample is the size of one float32LE sample
const bytesPerSample = 4
