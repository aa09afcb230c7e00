package audio

import (
	"encoding/binary"
	"math"
)

// pcmScale is the encode gain; decoding divides by pcmNorm so that the full
// negative range maps back into [-1, 1].
const (
	pcmScale = math.MaxInt16
	pcmNorm  = 32768.0
)

// EncodePCM converts float samples in [-1, 1] to 16-bit signed little-endian PCM.
// Samples outside the range are clamped so peaks never wrap around.
func EncodePCM(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		clamped := max(-1.0, min(1.0, float64(s)))
		v := math.Round(clamped * pcmScale)
		v = max(math.MinInt16, min(math.MaxInt16, v))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(v)))
	}
	return buf
}

// DecodePCM converts 16-bit signed little-endian PCM to float samples.
// A trailing odd byte is ignored.
func DecodePCM(data []byte) []float32 {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(float64(s) / pcmNorm)
	}
	return samples
}

// ComputeLevel returns the root-mean-square level of a frame. An empty frame is silence.
func ComputeLevel(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// LevelDB converts an RMS level to decibels full scale, floored at -100.
func LevelDB(level float64) float64 {
	if level < 1e-10 {
		return -100
	}
	return 20 * math.Log10(level)
}
