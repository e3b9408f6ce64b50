// ABOUTME: Outbound audio encoder package
// ABOUTME: Converts PCM buffers to telephony wire formats
// Package encode converts captured PCM to the formats the bridge accepts
// from the caller side.
//
// Supports: G.711 mu-law and 16-bit PCM, both at 8 kHz mono.
//
// Buffers at other rates or channel counts are downmixed and resampled
// before encoding.
//
// Example:
//
//	enc := encode.NewMulaw()
//	data, err := enc.Encode(buf)
package encode
