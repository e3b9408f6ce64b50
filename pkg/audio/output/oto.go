// ABOUTME: Oto-based audio output implementation
// ABOUTME: Plays float32 voices through the system mixer using oto
package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Evatrad/evatrad-go/pkg/audio"
	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// otoPollInterval is how often a voice checks whether the player drained
const otoPollInterval = 10 * time.Millisecond

// Oto output implementation using oto library
type Oto struct {
	mu         sync.Mutex
	otoCtx     *oto.Context
	sampleRate int
	channels   int
	ready      bool
	logger     *log.Logger
}

// NewOto creates a new Oto output
func NewOto() *Oto {
	return &Oto{logger: log.WithPrefix("output")}
}

// Open initializes the output device
func (o *Oto) Open(sampleRate, channels int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	// If already initialized with same format, reuse the existing context
	if o.otoCtx != nil && o.sampleRate == sampleRate && o.channels == channels {
		if err := o.otoCtx.Resume(); err != nil {
			return fmt.Errorf("%w: resume: %v", audio.ErrDeviceUnavailable, err)
		}
		o.ready = true
		return nil
	}

	// oto allows one context per process
	if o.otoCtx != nil {
		o.logger.Warn("Format change ignored, oto cannot reinitialize",
			"from", fmt.Sprintf("%dHz/%dch", o.sampleRate, o.channels),
			"to", fmt.Sprintf("%dHz/%dch", sampleRate, channels))
		o.ready = true
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}
	<-readyChan

	o.otoCtx = ctx
	o.sampleRate = sampleRate
	o.channels = channels
	o.ready = true

	o.logger.Info("Audio output initialized", "rate", sampleRate, "channels", channels)
	return nil
}

// Start plays r as a new oto player
func (o *Oto) Start(r io.Reader) (Voice, error) {
	o.mu.Lock()
	if !o.ready {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: output not initialized", audio.ErrDeviceUnavailable)
	}
	if err := o.otoCtx.Err(); err != nil {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}
	player := o.otoCtx.NewPlayer(r)
	o.mu.Unlock()

	v := newVoice()
	player.Play()

	go func() {
		defer v.finish()
		defer player.Close()

		ticker := time.NewTicker(otoPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-v.stop:
				player.Pause()
				return
			case <-ticker.C:
				if !player.IsPlaying() {
					if err := player.Err(); err != nil {
						o.logger.Warn("Player ended with error", "err", err)
					}
					return
				}
			}
		}
	}()

	return v, nil
}

// SampleRate returns the device rate
func (o *Oto) SampleRate() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sampleRate
}

// Close suspends the device. The oto context itself lives for the process.
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.otoCtx != nil && o.ready {
		o.ready = false
		if err := o.otoCtx.Suspend(); err != nil {
			return fmt.Errorf("failed to suspend oto context: %w", err)
		}
	}
	return nil
}
