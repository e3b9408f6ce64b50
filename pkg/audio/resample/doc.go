// ABOUTME: Audio resampling package using cubic interpolation
// ABOUTME: Converts decoded buffers to the output device sample rate
// Package resample provides audio sample rate conversion.
//
// Uses 4-point cubic (Catmull-Rom) interpolation followed by a single-pole
// low-pass when upsampling, which keeps 8 kHz telephony audio from sounding
// gritty at 44.1 or 48 kHz. Output is deterministic for a given input and
// rate pair.
//
// Example:
//
//	out := resample.Resample(buf, 48000)
package resample
