package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process; it is created on first use and
// suspended rather than destroyed when a speaker closes.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func sharedContext(rate int, latency time.Duration) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   rate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   latency,
		})
		if err != nil {
			otoErr = fmt.Errorf("oto context: %w", err)
			return
		}
		<-ready
		otoCtx, otoRate = ctx, rate
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != rate {
		return nil, fmt.Errorf("output context already running at %d Hz, requested %d Hz", otoRate, rate)
	}
	return otoCtx, nil
}

// Speaker is the device output context. The oto player pulls PCM from a
// Timeline, so the timeline's sample clock is the playback clock.
type Speaker struct {
	*Timeline

	mu     sync.Mutex
	player *oto.Player
	closed bool
}

// OpenSpeaker resumes the shared output context at rate and starts pulling audio.
func OpenSpeaker(rate int, latency time.Duration) (*Speaker, error) {
	ctx, err := sharedContext(rate, latency)
	if err != nil {
		return nil, err
	}
	if err = ctx.Resume(); err != nil {
		return nil, fmt.Errorf("resume output context: %w", err)
	}

	s := &Speaker{Timeline: NewTimeline(rate)}
	s.player = ctx.NewPlayer(s.Timeline)
	s.player.Play()
	slog.Info("speaker opened", "sample_rate", rate, "latency", latency)
	return s, nil
}

// Close stops playback and suspends the output context. Closing twice is a no-op.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.Timeline.Stop()

	var errs []error
	if s.player != nil {
		s.player.Pause()
		errs = append(errs, s.player.Close())
		s.player = nil
	}
	if otoCtx != nil {
		errs = append(errs, otoCtx.Suspend())
	}
	slog.Info("speaker closed")
	return errors.Join(errs...)
}
