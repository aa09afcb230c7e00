package playback

import (
	"time"

	"github.com/hubenschmidt/live-assistant/internal/audio"
)

// Scheduler owns the playback cursor: the sample position at which the next
// buffer may start. Buffers are placed at max(clock, cursor) and the cursor
// advances by each buffer's length, so playback never overlaps and never
// starts early.
type Scheduler struct {
	out    Output
	cursor int64
}

// NewScheduler creates a scheduler with its cursor at the output's current position.
func NewScheduler(out Output) *Scheduler {
	return &Scheduler{out: out, cursor: out.Position()}
}

// Enqueue decodes one inbound PCM chunk and schedules it. mime carries the
// chunk's declared rate; chunks at a different rate than the output are
// resampled. Returns the position the chunk was scheduled at.
func (s *Scheduler) Enqueue(chunk []byte, mime string) int64 {
	rate := s.out.SampleRate()
	samples := audio.DecodePCM(chunk)
	if src := audio.ParseRate(mime, rate); src != rate {
		samples = audio.Resample(samples, src, rate)
	}

	start := max(s.out.Position(), s.cursor)
	if len(samples) == 0 {
		return start
	}
	s.out.Schedule(samples, start)
	s.cursor = start + int64(len(samples))
	return start
}

// Interrupt discards queued audio and resets the cursor to the current clock
// position so the next chunk starts immediately.
func (s *Scheduler) Interrupt() {
	s.out.Stop()
	s.cursor = s.out.Position()
}

// Cursor returns the next free playback position.
func (s *Scheduler) Cursor() int64 { return s.cursor }

// Lead returns how far the cursor runs ahead of the output clock.
func (s *Scheduler) Lead() time.Duration {
	return audio.SamplesDuration(int(max(0, s.cursor-s.out.Position())), s.out.SampleRate())
}
