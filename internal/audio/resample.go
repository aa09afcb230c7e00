package audio

import "math"

// filterTaps is the length of the anti-aliasing FIR kernel.
const filterTaps = 31

// Resample converts inbound samples from srcRate to dstRate so that a chunk
// declared at one rate can be scheduled on an output context running at
// another. Linear interpolation is paired with a Blackman-windowed sinc
// low-pass: applied before decimation when downsampling and after
// interpolation when upsampling. Equal rates or empty input return samples as-is.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 || len(samples) == 0 {
		return samples
	}

	nyquist := float64(min(srcRate, dstRate)) / 2
	if srcRate > dstRate {
		samples = convolve(samples, lowPassKernel(nyquist/float64(srcRate), filterTaps))
	}

	step := float64(srcRate) / float64(dstRate)
	out := make([]float32, int(float64(len(samples))/step))
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx] + (samples[idx+1]-samples[idx])*frac
	}

	if dstRate > srcRate {
		out = convolve(out, lowPassKernel(nyquist/float64(dstRate), filterTaps))
	}
	return out
}

// convolve applies kernel centred on each sample; taps falling outside the
// input contribute nothing.
func convolve(samples, kernel []float32) []float32 {
	half := len(kernel) / 2
	out := make([]float32, len(samples))
	for i := range samples {
		var acc float32
		for j := max(0, half-i); j < min(len(kernel), len(samples)-i+half); j++ {
			acc += samples[i+j-half] * kernel[j]
		}
		out[i] = acc
	}
	return out
}

// lowPassKernel builds a unity-gain windowed-sinc kernel for a cutoff given
// as a fraction of the sample rate.
func lowPassKernel(fc float64, taps int) []float32 {
	half := taps / 2
	span := float64(taps - 1)
	weights := make([]float64, taps)
	var total float64
	for i := range weights {
		n := float64(i - half)
		sinc := 1.0
		if n != 0 {
			x := 2 * math.Pi * fc * n
			sinc = math.Sin(x) / x
		}
		blackman := 0.42 - 0.5*math.Cos(2*math.Pi*float64(i)/span) + 0.08*math.Cos(4*math.Pi*float64(i)/span)
		weights[i] = sinc * blackman
		total += weights[i]
	}

	kernel := make([]float32, taps)
	for i, w := range weights {
		kernel[i] = float32(w / total)
	}
	return kernel
}
