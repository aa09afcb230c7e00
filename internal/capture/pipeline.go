// Package capture turns microphone frames into outbound realtime audio.
package capture

import (
	"log/slog"

	"github.com/hubenschmidt/live-assistant/internal/audio"
	"github.com/hubenschmidt/live-assistant/internal/metrics"
	"github.com/hubenschmidt/live-assistant/internal/session"
)

// DefaultFrameSize is the sample count of one capture tick.
const DefaultFrameSize = 4096

// Sender accepts realtime input without blocking. *session.Outbox satisfies it.
type Sender interface {
	SendMedia(m session.Media) bool
}

// LevelObserver is told the level of every frame along with the mute state.
// *mode.Machine satisfies it.
type LevelObserver interface {
	ObserveLevel(level float64, muted bool)
}

// Pipeline processes one frame per tick. It holds no locks; call Process
// from the goroutine that owns the observer.
type Pipeline struct {
	observer LevelObserver
	send     Sender
}

func NewPipeline(observer LevelObserver, send Sender) *Pipeline {
	return &Pipeline{observer: observer, send: send}
}

// Process computes the frame level, updates the observer, and sends the
// frame as PCM unless muted. It returns the level.
func (p *Pipeline) Process(f audio.Frame, muted bool) float64 {
	level := f.Level()
	p.observer.ObserveLevel(level, muted)

	if muted {
		metrics.CaptureFrames.WithLabelValues("muted").Inc()
		return level
	}

	ok := p.send.SendMedia(session.Media{
		Kind:     session.MediaAudio,
		MIMEType: audio.MIMEType(f.SampleRate),
		Data:     audio.EncodePCM(f.Samples),
	})
	if !ok {
		metrics.CaptureFrames.WithLabelValues("dropped").Inc()
		slog.Debug("capture frame dropped", "samples", len(f.Samples))
		return level
	}
	metrics.CaptureFrames.WithLabelValues("sent").Inc()
	return level
}
