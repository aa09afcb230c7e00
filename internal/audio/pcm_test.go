package audio

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// roundTripTolerance covers one quantisation step on encode (1/32767) plus one
// on decode (1/32768).
const roundTripTolerance = 2.0 / 32768

func TestEncodePCM(t *testing.T) {
	tests := []struct {
		name  string
		input []float32
		want  []int16
	}{
		{name: "empty", input: nil, want: []int16{}},
		{name: "silence", input: []float32{0, 0}, want: []int16{0, 0}},
		{name: "full scale", input: []float32{1, -1}, want: []int16{32767, -32767}},
		{name: "clamps peaks", input: []float32{1.5, -3}, want: []int16{32767, -32767}},
		{name: "half", input: []float32{0.5}, want: []int16{16384}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := EncodePCM(tt.input)
			require.Len(t, buf, len(tt.input)*2)
			got := make([]int16, len(buf)/2)
			for i := range got {
				got[i] = int16(uint16(buf[i*2]) | uint16(buf[i*2+1])<<8)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodePCM(t *testing.T) {
	assert.Empty(t, DecodePCM(nil))
	assert.Empty(t, DecodePCM([]byte{0x01}), "odd trailing byte is ignored")

	got := DecodePCM([]byte{0x00, 0x80, 0xff, 0x7f, 0x00, 0x00})
	require.Len(t, got, 3)
	assert.InDelta(t, -1.0, got[0], 1e-9)
	assert.InDelta(t, 32767.0/32768.0, got[1], 1e-6)
	assert.Zero(t, got[2])
}

func TestPCMRoundTrip_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		samples := rapid.SliceOfN(rapid.Float32Range(-1, 1), 0, 512).Draw(rt, "samples")

		decoded := DecodePCM(EncodePCM(samples))
		require.Len(rt, decoded, len(samples))
		for i := range samples {
			assert.InDelta(rt, samples[i], decoded[i], roundTripTolerance, "sample %d", i)
		}
	})
}

func TestComputeLevel(t *testing.T) {
	assert.Zero(t, ComputeLevel(nil))
	assert.Zero(t, ComputeLevel(make([]float32, 4096)))

	full := make([]float32, 4096)
	for i := range full {
		full[i] = 1
		if i%2 == 1 {
			full[i] = -1
		}
	}
	assert.InDelta(t, 1.0, ComputeLevel(full), 1e-9)

	// Full scale after a PCM round trip stays within quantisation error.
	assert.InDelta(t, 1.0, ComputeLevel(DecodePCM(EncodePCM(full))), roundTripTolerance)
}

func TestComputeLevel_NeverNegative(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		samples := rapid.SliceOf(rapid.Float32Range(-1, 1)).Draw(rt, "samples")
		level := ComputeLevel(samples)
		assert.GreaterOrEqual(rt, level, 0.0)
		assert.LessOrEqual(rt, level, 1.0+1e-9)
	})
}

func TestLevelDB(t *testing.T) {
	assert.Equal(t, -100.0, LevelDB(0))
	assert.InDelta(t, 0.0, LevelDB(1), 1e-9)
	assert.InDelta(t, -20.0, LevelDB(0.1), 1e-9)
}

func TestFrame(t *testing.T) {
	f := Frame{Samples: make([]float32, 4096), SampleRate: 16000}
	assert.Equal(t, 256*time.Millisecond, f.Duration())
	assert.Zero(t, f.Level())
	assert.Zero(t, SamplesDuration(10, 0))
}

func TestResample(t *testing.T) {
	in := make([]float32, 2400)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 24000))
	}

	same := Resample(in, 24000, 24000)
	assert.Equal(t, len(in), len(same))

	down := Resample(in, 24000, 16000)
	assert.Len(t, down, 1600)

	up := Resample(in, 24000, 48000)
	assert.Len(t, up, 4800)

	assert.Empty(t, Resample(nil, 24000, 16000))
	// A low tone keeps roughly its energy across the conversion.
	assert.InDelta(t, ComputeLevel(in), ComputeLevel(down), 0.05)
}
