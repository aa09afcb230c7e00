// Package engine owns one live assistant: the session, the audio contexts,
// the vision pipeline and the mode state machine. All engine state is
// mutated on a single event-loop goroutine; public methods post work to it.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hubenschmidt/live-assistant/internal/audio"
	"github.com/hubenschmidt/live-assistant/internal/capture"
	"github.com/hubenschmidt/live-assistant/internal/memory"
	"github.com/hubenschmidt/live-assistant/internal/metrics"
	"github.com/hubenschmidt/live-assistant/internal/mode"
	"github.com/hubenschmidt/live-assistant/internal/playback"
	"github.com/hubenschmidt/live-assistant/internal/session"
	"github.com/hubenschmidt/live-assistant/internal/tools"
	"github.com/hubenschmidt/live-assistant/internal/vision"
)

// Config holds the tunables of one engine.
type Config struct {
	Session        session.Config
	InputRate      int
	OutputRate     int
	FrameSize      int
	LevelThreshold float64
	OutputLatency  time.Duration
	// ActionTTL is how long an active-action notice stays up.
	ActionTTL  time.Duration
	Vision     vision.Config
	VisionTier vision.Tier
}

func (c Config) withDefaults() Config {
	if c.InputRate <= 0 {
		c.InputRate = 16000
	}
	if c.OutputRate <= 0 {
		c.OutputRate = 24000
	}
	if c.FrameSize <= 0 {
		c.FrameSize = capture.DefaultFrameSize
	}
	if c.LevelThreshold <= 0 {
		c.LevelThreshold = mode.DefaultThreshold
	}
	if c.OutputLatency <= 0 {
		c.OutputLatency = 100 * time.Millisecond
	}
	if c.ActionTTL <= 0 {
		c.ActionTTL = 3 * time.Second
	}
	if c.VisionTier == "" {
		c.VisionTier = vision.TierMedium
	}
	if c.Session.Model == "" {
		c.Session.Model = session.DefaultModel
	}
	if c.Session.Voice == "" {
		c.Session.Voice = session.DefaultVoice
	}
	return c
}

// SpeakerOpener resumes an output context at rate.
type SpeakerOpener func(rate int, latency time.Duration) (playback.Output, error)

// OpenSpeaker is the default SpeakerOpener.
func OpenSpeaker(rate int, latency time.Duration) (playback.Output, error) {
	return playback.OpenSpeaker(rate, latency)
}

// Deps are the engine's collaborators. Nil members get the device defaults.
type Deps struct {
	Dialer         session.Dialer
	Permissions    Permissions
	OpenMicrophone capture.Opener
	OpenSpeaker    SpeakerOpener
	OpenCamera     vision.CameraOpener
	Tools          tools.Collaborators
	Now            func() time.Time
}

type phase int

const (
	phaseDisconnected phase = iota
	phaseConnecting
	phaseOpen
)

type frameMsg struct {
	gen   uint64
	frame audio.Frame
}

// State is a point-in-time copy of what the presentation layer shows.
type State struct {
	Mode   mode.Mode      `json:"mode"`
	Muted  bool           `json:"muted"`
	Error  string         `json:"error,omitempty"`
	Vision bool           `json:"vision"`
	Tier   vision.Tier    `json:"tier"`
	Action string         `json:"action,omitempty"`
	Memory []memory.Entry `json:"memory"`
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg  Config
	deps Deps

	actions chan func()
	frames  chan frameMsg
	quit    chan struct{}
	done    chan struct{}
	// ctx is cancelled on Close; tool dispatch runs under it.
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	machine    *mode.Machine
	log        *memory.Log
	dispatcher *tools.Dispatcher
	vision     *vision.Pipeline
	events     broadcaster
	outbox     atomic.Pointer[session.Outbox]

	// loop-owned
	gen           uint64
	phase         phase
	cancelConnect context.CancelFunc
	sess          *liveSession
	muted         bool
	err           error
	visionOn      bool
	actionID      uint64
	action        string
}

// New builds an engine and starts its event loop. Call Close to release it.
func New(cfg Config, deps Deps) *Engine {
	cfg = cfg.withDefaults()
	if deps.Dialer == nil {
		deps.Dialer = session.GeminiDialer{}
	}
	if deps.Permissions == nil {
		deps.Permissions = GrantAll
	}
	if deps.OpenMicrophone == nil {
		deps.OpenMicrophone = capture.OpenMicrophone
	}
	if deps.OpenSpeaker == nil {
		deps.OpenSpeaker = OpenSpeaker
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:        cfg,
		deps:       deps,
		actions:    make(chan func(), 64),
		frames:     make(chan frameMsg, 8),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		log:        memory.NewLog(deps.Now),
		dispatcher: tools.NewDispatcher(deps.Tools),
	}
	e.machine = mode.NewMachine(cfg.LevelThreshold, e.modeChanged)
	e.vision = vision.NewPipeline(cfg.Vision, deps.OpenCamera, visionSender{e}, e.visionFailed)
	e.vision.SetTier(cfg.VisionTier)
	go e.run()
	return e
}

func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			return
		case fn := <-e.actions:
			fn()
		case fm := <-e.frames:
			e.processFrame(fm)
		}
	}
}

// call runs fn on the event loop and waits for its result.
func (e *Engine) call(fn func() error) error {
	res := make(chan error, 1)
	select {
	case e.actions <- func() { res <- fn() }:
	case <-e.done:
		return ErrClosed
	}
	select {
	case err := <-res:
		return err
	case <-e.done:
		return ErrClosed
	}
}

// post queues fn without waiting. It gives up when stop is closed or the
// engine shuts down.
func (e *Engine) post(stop <-chan struct{}, fn func()) {
	select {
	case e.actions <- fn:
	case <-stop:
	case <-e.quit:
	}
}

// Close disconnects and stops the event loop. Subscriber channels are
// closed. Closing twice is a no-op.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		_ = e.call(func() error {
			e.teardown()
			return nil
		})
		e.cancel()
		close(e.quit)
		<-e.done
		e.events.closeAll()
	})
	return nil
}

// Subscribe returns a stream of engine events and a func that ends the
// subscription.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	return e.events.subscribe()
}

func (e *Engine) emit(ev Event) {
	ev.At = e.deps.Now()
	ev.Mode = e.machine.Mode()
	e.events.publish(ev)
}

func (e *Engine) modeChanged(from, to mode.Mode) {
	metrics.ModeTransitions.WithLabelValues(to.String()).Inc()
	e.emit(Event{Type: EventModeChanged})
}

// fail records err as the current error.
func (e *Engine) fail(err error) {
	e.err = err
	e.emit(Event{Type: EventErrorRaised, Error: err.Error()})
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() State {
	var st State
	err := e.call(func() error {
		st = State{
			Mode:   e.machine.Mode(),
			Muted:  e.muted,
			Vision: e.visionOn,
			Tier:   e.vision.Tier(),
			Action: e.action,
			Memory: e.log.Entries(),
		}
		if e.err != nil {
			st.Error = e.err.Error()
		}
		return nil
	})
	if err != nil {
		st.Mode = mode.Disconnected
	}
	return st
}

func (e *Engine) Mode() mode.Mode { return e.Snapshot().Mode }

func (e *Engine) Memory() []memory.Entry { return e.Snapshot().Memory }

func (e *Engine) Muted() bool { return e.Snapshot().Muted }

// Err returns the current error, nil after a successful action.
func (e *Engine) Err() error {
	var out error
	_ = e.call(func() error {
		out = e.err
		return nil
	})
	return out
}

// SetMuted silences the outbound audio stream without closing the session.
// Levels are still measured while muted.
func (e *Engine) SetMuted(muted bool) {
	_ = e.call(func() error {
		if e.muted == muted {
			return nil
		}
		e.muted = muted
		e.emit(Event{Type: EventMuteChanged, Muted: muted})
		return nil
	})
}

// SendText sends typed user input on the open session.
func (e *Engine) SendText(text string) error {
	return e.call(func() error {
		if e.phase != phaseOpen {
			return ErrNotConnected
		}
		if text == "" {
			return nil
		}
		if !e.sess.out.SendText(text) {
			return ErrConnectionUnstable
		}
		e.appendMemory(memory.RoleUser, text)
		e.err = nil
		return nil
	})
}

func (e *Engine) appendMemory(role memory.Role, text string) {
	entry := e.log.Append(role, text)
	e.emit(Event{Type: EventMemoryAppended, Entry: &entry})
}

// pushFrame hands a capture frame to the loop. It runs on the device
// goroutine and never blocks; frames are dropped when the loop is behind.
func (e *Engine) pushFrame(gen uint64, f audio.Frame) {
	select {
	case e.frames <- frameMsg{gen: gen, frame: f}:
	default:
		metrics.CaptureFrames.WithLabelValues("backlog").Inc()
	}
}

func (e *Engine) processFrame(fm frameMsg) {
	if fm.gen != e.gen || e.sess == nil || !e.sess.capturing {
		return
	}
	level := e.sess.capture.Process(fm.frame, e.muted)
	e.emit(Event{Type: EventLevelChanged, Level: level})
}

type visionSender struct{ e *Engine }

func (s visionSender) SendMedia(m session.Media) bool {
	out := s.e.outbox.Load()
	if out == nil {
		return false
	}
	return out.SendMedia(m)
}
