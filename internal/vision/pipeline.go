// Package vision samples a camera at a fixed cadence and forwards encoded
// frames as realtime image input.
package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hubenschmidt/live-assistant/internal/metrics"
	"github.com/hubenschmidt/live-assistant/internal/session"
)

// ErrCameraUnavailable means the camera could not be acquired. It never
// affects the audio session.
var ErrCameraUnavailable = errors.New("camera unavailable")

// Sender accepts realtime input without blocking.
type Sender interface {
	SendMedia(m session.Media) bool
}

type Config struct {
	Device   string
	Interval time.Duration
	// Settle is how long a tier switch waits between releasing the old
	// acquisition and starting the new one.
	Settle   time.Duration
	MaxWidth int
	Quality  int
}

// Pipeline owns at most one camera and one sampling task.
type Pipeline struct {
	cfg     Config
	open    CameraOpener
	send    Sender
	onError func(error)

	mu      sync.Mutex
	tier    Tier
	cam     Camera
	cancel  context.CancelFunc
	done    chan struct{}
	restart *time.Timer
}

// NewPipeline builds a stopped pipeline. onError receives failures of the
// deferred restart after a tier switch.
func NewPipeline(cfg Config, open CameraOpener, send Sender, onError func(error)) *Pipeline {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if open == nil {
		open = OpenFFmpegCamera
	}
	return &Pipeline{cfg: cfg, open: open, send: send, onError: onError, tier: TierMedium}
}

// Running reports whether a camera is acquired or about to be re-acquired.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cam != nil || p.restart != nil
}

func (p *Pipeline) Tier() Tier {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tier
}

// Start acquires the camera at tier and begins sampling. Starting a running
// pipeline is a no-op.
func (p *Pipeline) Start(ctx context.Context, tier Tier) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cam != nil {
		return nil
	}
	p.stopRestartLocked()
	p.tier = tier
	return p.startLocked(ctx)
}

func (p *Pipeline) startLocked(ctx context.Context) error {
	w, h := p.tier.Size()
	cam, err := p.open(ctx, p.cfg.Device, w, h)
	if err != nil {
		metrics.VisionFrames.WithLabelValues("unavailable").Inc()
		return fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	taskCtx, cancel := context.WithCancel(context.Background())
	p.cam, p.cancel, p.done = cam, cancel, make(chan struct{})
	go p.sample(taskCtx, cam, p.done)
	slog.Info("vision started", "tier", p.tier, "interval", p.cfg.Interval)
	return nil
}

// Stop ends sampling and releases the camera. Stopping a stopped pipeline
// is a no-op.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopRestartLocked()
	p.stopLocked()
}

func (p *Pipeline) stopRestartLocked() {
	if p.restart != nil {
		p.restart.Stop()
		p.restart = nil
	}
}

func (p *Pipeline) stopLocked() {
	if p.cam == nil {
		return
	}
	p.cancel()
	<-p.done
	if err := p.cam.Close(); err != nil {
		slog.Warn("camera close", "error", err)
	}
	p.cam, p.cancel, p.done = nil, nil, nil
	slog.Info("vision stopped")
}

// SetTier switches resolution. A running pipeline releases its camera now
// and re-acquires it after the settle delay; a stopped one only records the
// tier for the next Start.
func (p *Pipeline) SetTier(tier Tier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tier == p.tier {
		return
	}
	p.tier = tier
	if p.cam == nil && p.restart == nil {
		return
	}
	p.stopLocked()
	p.stopRestartLocked()

	var t *time.Timer
	t = time.AfterFunc(p.cfg.Settle, func() {
		p.mu.Lock()
		if p.restart != t {
			p.mu.Unlock()
			return
		}
		p.restart = nil
		err := p.startLocked(context.Background())
		p.mu.Unlock()
		if err != nil && p.onError != nil {
			p.onError(err)
		}
	})
	p.restart = t
}

func (p *Pipeline) sample(ctx context.Context, cam Camera, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sendFrame(cam)
		}
	}
}

func (p *Pipeline) sendFrame(cam Camera) {
	img, err := cam.Frame()
	if err != nil {
		metrics.VisionFrames.WithLabelValues("no_frame").Inc()
		slog.Debug("camera frame", "error", err)
		return
	}
	data, err := Encode(img, p.cfg.MaxWidth, p.cfg.Quality)
	if err != nil {
		metrics.VisionFrames.WithLabelValues("encode_error").Inc()
		slog.Warn("vision encode", "error", err)
		return
	}
	if !p.send.SendMedia(session.Media{Kind: session.MediaImage, MIMEType: "image/jpeg", Data: data}) {
		metrics.VisionFrames.WithLabelValues("dropped").Inc()
		return
	}
	metrics.VisionFrames.WithLabelValues("sent").Inc()
}
