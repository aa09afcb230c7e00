package capture

import "github.com/hubenschmidt/live-assistant/internal/audio"

// Framer cuts device callbacks of any length into frames of exactly size
// samples. Leftover samples wait for the next Write.
type Framer struct {
	size int
	rate int
	buf  []float32
	emit func(audio.Frame)
}

func NewFramer(size, rate int, emit func(audio.Frame)) *Framer {
	if size <= 0 {
		size = DefaultFrameSize
	}
	return &Framer{size: size, rate: rate, buf: make([]float32, 0, size*2), emit: emit}
}

// Write appends samples and emits every complete frame. Each emitted frame
// owns its sample slice.
func (f *Framer) Write(samples []float32) {
	f.buf = append(f.buf, samples...)
	for len(f.buf) >= f.size {
		frame := make([]float32, f.size)
		copy(frame, f.buf[:f.size])
		f.emit(audio.Frame{Samples: frame, SampleRate: f.rate})
		f.buf = append(f.buf[:0], f.buf[f.size:]...)
	}
}

// Reset drops buffered samples.
func (f *Framer) Reset() { f.buf = f.buf[:0] }

// Pending reports how many samples are waiting for a full frame.
func (f *Framer) Pending() int { return len(f.buf) }
