package playback

import (
	"sort"
	"sync"
	"time"

	"github.com/hubenschmidt/live-assistant/internal/audio"
)

type scheduledBuffer struct {
	start   int64 // sample index on the timeline
	samples []float32
}

func (b scheduledBuffer) end() int64 { return b.start + int64(len(b.samples)) }

// Timeline is a pull-based mono mixer with a sample clock. The device reads
// PCM from it; its clock advances by exactly the samples read, and
// positions with nothing scheduled read as silence.
type Timeline struct {
	rate int

	mu      sync.Mutex
	pos     int64
	pending []scheduledBuffer
}

// NewTimeline creates a timeline running at rate samples per second.
func NewTimeline(rate int) *Timeline {
	return &Timeline{rate: rate}
}

func (t *Timeline) SampleRate() int { return t.rate }

func (t *Timeline) Position() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos
}

// CurrentTime is Position as a duration.
func (t *Timeline) CurrentTime() time.Duration {
	return audio.SamplesDuration(int(t.Position()), t.rate)
}

// Schedule queues samples at sample position start. Anything before the
// current position is trimmed rather than played late.
func (t *Timeline) Schedule(samples []float32, start int64) {
	if len(samples) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if start < t.pos {
		skip := t.pos - start
		if skip >= int64(len(samples)) {
			return
		}
		samples = samples[skip:]
		start = t.pos
	}
	t.pending = append(t.pending, scheduledBuffer{start: start, samples: samples})
	sort.Slice(t.pending, func(i, j int) bool { return t.pending[i].start < t.pending[j].start })
}

func (t *Timeline) Stop() {
	t.mu.Lock()
	t.pending = nil
	t.mu.Unlock()
}

// Buffered returns the scheduled audio not yet read, measured from the current position.
func (t *Timeline) Buffered() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return 0
	}
	last := t.pending[len(t.pending)-1].end()
	return audio.SamplesDuration(int(last-t.pos), t.rate)
}

// Read fills p with 16-bit little-endian PCM and advances the clock.
// It never returns io.EOF so the device keeps pulling silence between turns.
func (t *Timeline) Read(p []byte) (int, error) {
	n := len(p) / 2
	if n == 0 {
		return 0, nil
	}
	mix := t.render(n)
	copy(p, audio.EncodePCM(mix))
	return n * 2, nil
}

func (t *Timeline) render(n int) []float32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	from, to := t.pos, t.pos+int64(n)
	mix := make([]float32, n)
	kept := t.pending[:0]
	for _, b := range t.pending {
		lo, hi := max(from, b.start), min(to, b.end())
		for i := lo; i < hi; i++ {
			mix[i-from] += b.samples[i-b.start]
		}
		if b.end() > to {
			kept = append(kept, b)
		}
	}
	t.pending = kept
	t.pos = to
	return mix
}
