// ABOUTME: Audio output interface tests
// ABOUTME: Verifies implementations and the silent backend's pacing
package output

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/Evatrad/evatrad-go/pkg/audio"
)

func TestImplementsOutput(t *testing.T) {
	var _ Output = (*Oto)(nil)
	var _ Output = (*Null)(nil)
}

func TestNullStartBeforeOpen(t *testing.T) {
	n := NewNull()
	_, err := n.Start(bytes.NewReader(nil))
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestNullOpenInvalid(t *testing.T) {
	if err := NewNull().Open(0, 1); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestNullPlaysInRealTime(t *testing.T) {
	n := NewNull()
	if err := n.Open(8000, 1); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if n.SampleRate() != 8000 {
		t.Errorf("expected 8000, got %d", n.SampleRate())
	}

	// 100ms of audio
	data := make([]byte, 800*bytesPerSample)
	start := time.Now()
	v, err := n.Start(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case <-v.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("voice never finished")
	}

	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("expected roughly 100ms of playback, finished after %v", elapsed)
	}
}

func TestNullStop(t *testing.T) {
	n := NewNull()
	if err := n.Open(8000, 1); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	// 10s of audio
	v, err := n.Start(bytes.NewReader(make([]byte, 80000*bytesPerSample)))
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	v.Stop()
	v.Stop()

	select {
	case <-v.Done():
	case <-time.After(time.Second):
		t.Fatal("stop did not end the voice")
	}
}

func TestNullClose(t *testing.T) {
	n := NewNull()
	_ = n.Open(8000, 1)
	_ = n.Close()
	if _, err := n.Start(bytes.NewReader(nil)); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable after close, got %v", err)
	}
}
