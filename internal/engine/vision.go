package engine

import (
	"context"
	"log/slog"

	"github.com/hubenschmidt/live-assistant/internal/vision"
)

// EnableVision asks for camera access and starts sampling frames into the
// open session. Camera failures are returned and recorded but never touch
// the audio session.
func (e *Engine) EnableVision(ctx context.Context) error {
	err := e.call(func() error {
		if e.phase != phaseOpen {
			return ErrNotConnected
		}
		return nil
	})
	if err != nil {
		return err
	}

	granted, err := e.deps.Permissions.Request(ctx, PermissionVideo)
	if err == nil && !granted {
		err = ErrPermissionDenied
	}
	if err == nil {
		err = e.vision.Start(ctx, e.vision.Tier())
	}
	if err != nil {
		_ = e.call(func() error {
			e.fail(err)
			return nil
		})
		return err
	}

	return e.call(func() error {
		if e.phase != phaseOpen {
			e.vision.Stop()
			return ErrNotConnected
		}
		e.visionOn = true
		e.err = nil
		e.emit(Event{Type: EventVisionChanged, Vision: true, Tier: e.vision.Tier()})
		return nil
	})
}

// DisableVision stops sampling and releases the camera.
func (e *Engine) DisableVision() {
	_ = e.call(func() error {
		e.stopVision()
		return nil
	})
}

// SetVisionTier switches the camera resolution. A running camera is
// released and re-acquired after the settle delay.
func (e *Engine) SetVisionTier(tier vision.Tier) error {
	if _, err := vision.ParseTier(string(tier)); err != nil {
		return err
	}
	return e.call(func() error {
		if tier == e.vision.Tier() {
			return nil
		}
		e.vision.SetTier(tier)
		e.emit(Event{Type: EventVisionChanged, Vision: e.visionOn, Tier: tier})
		return nil
	})
}

func (e *Engine) stopVision() {
	e.vision.Stop()
	if !e.visionOn {
		return
	}
	e.visionOn = false
	e.emit(Event{Type: EventVisionChanged, Vision: false, Tier: e.vision.Tier()})
}

// visionFailed runs on the vision pipeline's goroutine when re-acquiring the
// camera after a tier switch fails.
func (e *Engine) visionFailed(err error) {
	slog.Warn("vision restart failed", "error", err)
	e.post(nil, func() {
		e.stopVision()
		e.fail(err)
	})
}
