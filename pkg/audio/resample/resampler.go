// ABOUTME: Cubic resampler with post-interpolation smoothing
// ABOUTME: Converts interleaved float samples between sample rates
package resample

import (
	"math"

	"github.com/Evatrad/evatrad-go/pkg/audio"
)

// Resampler converts between two fixed sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64

	// alpha is the single-pole coefficient; 1 disables smoothing
	alpha float32
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	if channels <= 0 {
		channels = 1
	}
	r := &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		alpha:      1,
	}
	if outputRate > inputRate && inputRate > 0 {
		// Cutoff at the source Nyquist frequency
		cutoff := float64(inputRate) / 2
		r.alpha = float32(1 - math.Exp(-2*math.Pi*cutoff/float64(outputRate)))
	}
	return r
}

// Resample converts interleaved input samples to the output rate. Each call
// is independent: no state carries over between calls.
func (r *Resampler) Resample(input []float32) []float32 {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return []float32{}
	}
	if r.inputRate == r.outputRate {
		out := make([]float32, inputFrames*r.channels)
		copy(out, input)
		return out
	}

	outputFrames := r.OutputFrames(inputFrames)
	output := make([]float32, outputFrames*r.channels)

	for ch := 0; ch < r.channels; ch++ {
		at := func(i int) float32 {
			if i < 0 {
				i = 0
			} else if i >= inputFrames {
				i = inputFrames - 1
			}
			return input[i*r.channels+ch]
		}

		var prev float32
		for o := 0; o < outputFrames; o++ {
			pos := float64(o) * r.ratio
			idx := int(pos)
			frac := float32(pos - float64(idx))

			s := cubic(at(idx-1), at(idx), at(idx+1), at(idx+2), frac)
			if o == 0 {
				prev = s
			} else {
				prev += r.alpha * (s - prev)
			}
			output[o*r.channels+ch] = audio.Clamp(prev)
		}
	}

	return output
}

// OutputFrames calculates how many frames Resample produces for inputFrames
func (r *Resampler) OutputFrames(inputFrames int) int {
	if inputFrames <= 0 {
		return 0
	}
	return (inputFrames*r.outputRate + r.inputRate - 1) / r.inputRate
}

// cubic is 4-point Catmull-Rom interpolation between y1 and y2
func cubic(y0, y1, y2, y3, t float32) float32 {
	a := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	b := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	c := -0.5*y0 + 0.5*y2
	return ((a*t+b)*t+c)*t + y1
}

// Resample returns buf converted to targetRate. A buffer already at the
// target rate is returned as is.
func Resample(buf *audio.Buffer, targetRate int) *audio.Buffer {
	if buf == nil || targetRate <= 0 || buf.SampleRate == targetRate || buf.SampleRate <= 0 {
		return buf
	}
	r := New(buf.SampleRate, targetRate, buf.Channels)
	return &audio.Buffer{
		Samples:    r.Resample(buf.Samples),
		SampleRate: targetRate,
		Channels:   r.channels,
	}
}
