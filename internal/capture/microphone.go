package capture

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/hubenschmidt/live-assistant/internal/audio"
)

// Source is a started microphone. Stop releases the capture track and
// Close releases the capture context; both are idempotent.
type Source interface {
	Stop() error
	Close() error
}

// Opener starts a microphone that delivers fixed-size frames to onFrame
// from its own goroutine.
type Opener func(rate, frameSize int, onFrame func(audio.Frame)) (Source, error)

// Microphone is a malgo capture context and device.
type Microphone struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu      sync.Mutex
	framer  *Framer
	stopped bool
	closed  bool
}

// OpenMicrophone is the default Opener: mono S16 capture at rate.
func OpenMicrophone(rate, frameSize int, onFrame func(audio.Frame)) (Source, error) {
	ctxCfg := malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}
	ctx, err := malgo.InitContext(nil, ctxCfg, func(msg string) {
		slog.Debug("malgo", "msg", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("init capture context: %w", err)
	}

	m := &Microphone{ctx: ctx, framer: NewFramer(frameSize, rate, onFrame)}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = 1
	devCfg.SampleRate = uint32(rate)
	devCfg.PeriodSizeInMilliseconds = 20

	device, err := malgo.InitDevice(ctx.Context, devCfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) { m.write(input) },
	})
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		m.Stop()
		m.Close()
		return nil, fmt.Errorf("start capture device: %w", err)
	}
	slog.Info("microphone started", "rate", rate, "frame_size", frameSize)
	return m, nil
}

func (m *Microphone) write(pcm []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.framer.Write(audio.DecodePCM(pcm))
}

// Stop halts the device. No frame is delivered after Stop returns.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	m.framer.Reset()
	m.mu.Unlock()

	if m.device == nil {
		return nil
	}
	err := m.device.Stop()
	m.device.Uninit()
	if err != nil {
		return fmt.Errorf("stop capture device: %w", err)
	}
	return nil
}

// Close releases the capture context.
func (m *Microphone) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if err := m.ctx.Uninit(); err != nil {
		return fmt.Errorf("uninit capture context: %w", err)
	}
	m.ctx.Free()
	return nil
}
