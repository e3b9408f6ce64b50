// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the Output interface, an oto backend and a silent backend
// Package output provides audio playback devices.
//
// An Output plays any number of voices at once; the device mixes them. Each
// voice reads little-endian float32 samples at the device rate until EOF and
// reports completion on its Done channel.
//
// Example:
//
//	out := output.NewOto()
//	err := out.Open(48000, 1)
//	voice, err := out.Start(bus.NewReader(buf))
//	<-voice.Done()
package output
