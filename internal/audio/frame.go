package audio

import "time"

// Frame is one fixed-size block of captured mono samples.
type Frame struct {
	Samples    []float32
	SampleRate int
}

// Level returns the frame's RMS level.
func (f Frame) Level() float64 {
	return ComputeLevel(f.Samples)
}

// Duration returns how long the frame plays at its sample rate.
func (f Frame) Duration() time.Duration {
	return SamplesDuration(len(f.Samples), f.SampleRate)
}

// SamplesDuration returns the playback duration of n mono samples at rate.
func SamplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}
