// ABOUTME: Audio decoder package for wire payloads
// ABOUTME: Converts base64, mu-law, PCM16 and container files to normalized PCM
// Package decode is the codec layer of the playback engine.
//
// Supports: base64 transport text, G.711 mu-law, PCM16 (8, 16 and 24-bit
// inside WAV), and the container formats WAV, MP3, FLAC and Ogg/Opus.
//
// Raw telephony helpers are pure and synchronous. Container decoding takes a
// context so a canceled playback can abandon the work:
//
//	data, err := decode.Transport(msg.AudioBase64)
//	buf, err := decode.NewContainer().Decode(ctx, data)
package decode
