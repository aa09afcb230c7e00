package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hubenschmidt/live-assistant/internal/audio"
	"github.com/hubenschmidt/live-assistant/internal/capture"
	"github.com/hubenschmidt/live-assistant/internal/memory"
	"github.com/hubenschmidt/live-assistant/internal/metrics"
	"github.com/hubenschmidt/live-assistant/internal/playback"
	"github.com/hubenschmidt/live-assistant/internal/session"
	"github.com/hubenschmidt/live-assistant/internal/tools"
)

// liveSession is everything acquired for one open session.
type liveSession struct {
	id      string
	ch      session.Channel
	out     *session.Outbox
	mic     capture.Source
	speaker playback.Output

	sched      *playback.Scheduler
	capture    *capture.Pipeline
	transcript memory.Transcript
	capturing  bool

	// closed is closed on release; goroutines posting on behalf of this
	// session stop waiting once it is.
	closed chan struct{}
	once   sync.Once
}

// release frees resources in order: microphone track, capture context,
// output context, then the channel. Releasing twice is a no-op.
func (ls *liveSession) release() {
	ls.once.Do(func() {
		close(ls.closed)
		if ls.mic != nil {
			if err := ls.mic.Stop(); err != nil {
				slog.Warn("stop microphone", "session_id", ls.id, "error", err)
			}
			if err := ls.mic.Close(); err != nil {
				slog.Warn("close capture context", "session_id", ls.id, "error", err)
			}
		}
		if ls.speaker != nil {
			if err := ls.speaker.Close(); err != nil {
				slog.Warn("close output context", "session_id", ls.id, "error", err)
			}
		}
		if ls.ch != nil {
			if err := ls.ch.Close(); err != nil {
				slog.Debug("close session", "session_id", ls.id, "error", err)
			}
		}
		if ls.out != nil {
			ls.out.Close()
		}
	})
}

func (e *Engine) sessionConfig() session.Config {
	cfg := e.cfg.Session
	cfg.InputTranscription = true
	cfg.OutputTranscription = true
	cfg.Tools = tools.Declarations()
	return cfg
}

// Connect opens the session. It fails fast with ErrAlreadyConnected while a
// session is open or being set up. On success the mode is idle and capture
// is running.
func (e *Engine) Connect(ctx context.Context) error {
	start := time.Now()
	var (
		gen        uint64
		connectCtx context.Context
	)
	err := e.call(func() error {
		if e.phase != phaseDisconnected {
			return ErrAlreadyConnected
		}
		if e.cfg.Session.APIKey == "" {
			e.fail(ErrMissingCredential)
			return ErrMissingCredential
		}
		e.gen++
		gen = e.gen
		e.phase = phaseConnecting
		connectCtx, e.cancelConnect = context.WithCancel(ctx)
		return nil
	})
	if err != nil {
		return err
	}

	ls, openErr := e.open(connectCtx, gen)

	err = e.call(func() error {
		if gen != e.gen {
			// Disconnected while setting up.
			if ls != nil {
				ls.release()
			}
			return fmt.Errorf("connect: %w", context.Canceled)
		}
		e.cancelConnect()
		e.cancelConnect = nil
		if openErr != nil {
			e.phase = phaseDisconnected
			e.fail(openErr)
			return openErr
		}
		e.install(gen, ls)
		metrics.ConnectDuration.Observe(time.Since(start).Seconds())
		return nil
	})
	if errors.Is(err, ErrClosed) && ls != nil {
		ls.release()
	}
	return err
}

// open acquires the session's resources off the event loop. Nothing is
// acquired before the microphone permission is granted.
func (e *Engine) open(ctx context.Context, gen uint64) (*liveSession, error) {
	granted, err := e.deps.Permissions.Request(ctx, PermissionAudio)
	if err != nil {
		return nil, fmt.Errorf("request microphone permission: %w", err)
	}
	if !granted {
		return nil, ErrPermissionDenied
	}

	ls := &liveSession{id: uuid.NewString(), closed: make(chan struct{})}

	ls.speaker, err = e.deps.OpenSpeaker(e.cfg.OutputRate, e.cfg.OutputLatency)
	if err != nil {
		return nil, fmt.Errorf("open output context: %w", err)
	}

	ls.ch, err = e.deps.Dialer.Dial(ctx, e.sessionConfig())
	if err != nil {
		ls.release()
		return nil, dialError(err)
	}

	ls.mic, err = e.deps.OpenMicrophone(e.cfg.InputRate, e.cfg.FrameSize, func(f audio.Frame) {
		e.pushFrame(gen, f)
	})
	if err != nil {
		ls.release()
		return nil, fmt.Errorf("open microphone: %w", err)
	}
	return ls, nil
}

func dialError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("open session: %w", err)
	}
	class := session.Classify(err)
	metrics.SessionErrors.WithLabelValues(class.String()).Inc()
	if class == session.ClassAuth {
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	return fmt.Errorf("%w: %v", ErrConnectionUnstable, err)
}

func (e *Engine) install(gen uint64, ls *liveSession) {
	ls.out = session.NewOutbox(ls.ch, 64, func(err error) {
		e.post(ls.closed, func() { e.sessionFailed(gen, err) })
	})
	ls.sched = playback.NewScheduler(ls.speaker)
	ls.capture = capture.NewPipeline(e.machine, ls.out)
	ls.capturing = true

	e.sess = ls
	e.phase = phaseOpen
	e.err = nil
	e.outbox.Store(ls.out)
	metrics.SessionsActive.Set(1)
	metrics.SessionsTotal.Inc()

	e.machine.Opened()
	go e.receive(gen, ls)
	slog.Info("session opened", "session_id", ls.id, "model", e.cfg.Session.Model, "voice", e.cfg.Session.Voice)
}

// Disconnect tears the session down synchronously. It is a no-op when
// already disconnected.
func (e *Engine) Disconnect() {
	_ = e.call(func() error {
		e.teardown()
		return nil
	})
}

// teardown stops capture, stops vision and releases the camera, releases
// the microphone track, then closes both audio contexts and the channel.
func (e *Engine) teardown() {
	if e.phase == phaseDisconnected {
		return
	}
	if e.cancelConnect != nil {
		e.cancelConnect()
		e.cancelConnect = nil
	}
	e.gen++
	e.phase = phaseDisconnected
	e.outbox.Store(nil)

	ls := e.sess
	e.sess = nil
	if ls != nil {
		ls.capturing = false
	}
	e.stopVision()
	if ls != nil {
		ls.release()
		metrics.SessionsActive.Set(0)
		slog.Info("session closed", "session_id", ls.id)
	}
	e.clearAction()
	e.machine.Closed()
}

// sessionFailed handles a receive or send failure of session gen.
func (e *Engine) sessionFailed(gen uint64, err error) {
	if gen != e.gen || e.sess == nil {
		return
	}
	class := session.Classify(err)
	metrics.SessionErrors.WithLabelValues(class.String()).Inc()
	slog.Error("session failed", "session_id", e.sess.id, "class", class.String(), "error", err)

	surfaced := ErrConnectionUnstable
	if class == session.ClassAuth {
		surfaced = ErrAuthentication
	}
	e.teardown()
	e.fail(fmt.Errorf("%w: %v", surfaced, err))
}
