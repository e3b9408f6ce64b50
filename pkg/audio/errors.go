// ABOUTME: Playback error taxonomy
// ABOUTME: Sentinel errors wrapped by decoders, channels and the session
package audio

import "errors"

var (
	// ErrMalformedPayload means the transport text is not valid base64
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrUnsupportedFormat means no decoder recognizes the container or codec
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrCorruptPayload means a recognized container failed mid-parse
	ErrCorruptPayload = errors.New("corrupt audio payload")

	// ErrDeviceUnavailable is fatal for the session: there is no usable output
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrPlaybackTimeout means the completion fallback fired before the
	// device reported the end of playback. Logged as a warning.
	ErrPlaybackTimeout = errors.New("playback completion timed out")

	// ErrPreempted means playback was canceled on purpose (higher priority
	// audio, stop, or call end). Never logged as an error.
	ErrPreempted = errors.New("playback preempted")
)

// IsFatal reports whether err disables audio for the rest of the session
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceUnavailable)
}

// IsExpected reports whether err is part of normal control flow
func IsExpected(err error) bool {
	return errors.Is(err, ErrPreempted)
}
