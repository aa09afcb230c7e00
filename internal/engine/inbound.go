package engine

import (
	"log/slog"
	"time"

	"github.com/hubenschmidt/live-assistant/internal/memory"
	"github.com/hubenschmidt/live-assistant/internal/metrics"
	"github.com/hubenschmidt/live-assistant/internal/session"
	"github.com/hubenschmidt/live-assistant/internal/tools"
)

// receive pumps inbound events onto the loop in transport order until the
// channel fails or is closed.
func (e *Engine) receive(gen uint64, ls *liveSession) {
	for {
		ev, err := ls.ch.Receive()
		if err != nil {
			e.post(ls.closed, func() { e.sessionFailed(gen, err) })
			return
		}
		e.post(ls.closed, func() { e.handle(gen, ev) })
	}
}

// handle applies one server message. Parts are applied in a fixed order:
// setup, tool calls, transcripts, audio, interruption, turn completion.
func (e *Engine) handle(gen uint64, ev session.Event) {
	if gen != e.gen || e.sess == nil {
		return
	}
	ls := e.sess

	if ev.SetupComplete {
		e.machine.Opened()
	}
	if len(ev.ToolCalls) > 0 {
		e.runTools(ls, ev.ToolCalls)
	}
	if ev.InputTranscript != "" {
		ls.transcript.AddInput(ev.InputTranscript)
	}
	if ev.OutputTranscript != "" {
		ls.transcript.AddOutput(ev.OutputTranscript)
	}
	for _, m := range ev.Audio {
		if m.Kind != session.MediaAudio || len(m.Data) == 0 {
			continue
		}
		e.machine.AudioReceived()
		ls.sched.Enqueue(m.Data, m.MIMEType)
		metrics.InboundAudioChunks.Inc()
		metrics.PlaybackLead.Set(ls.sched.Lead().Seconds())
	}
	if ev.Interrupted {
		ls.sched.Interrupt()
		metrics.Interruptions.Inc()
		metrics.PlaybackLead.Set(0)
		e.machine.Interrupted()
	}
	if ev.TurnComplete {
		for _, entry := range ls.transcript.Flush(e.log) {
			e.emit(Event{Type: EventMemoryAppended, Entry: &entry})
		}
		e.machine.TurnComplete()
	}
	if ev.GoAway {
		slog.Info("server will close the session soon", "session_id", ls.id)
	}
}

// runTools dispatches a batch and answers it with one message holding one
// result per call.
func (e *Engine) runTools(ls *liveSession, calls []session.ToolCall) {
	e.machine.Processing()
	outcomes := e.dispatcher.Dispatch(e.ctx, calls)
	if !ls.out.SendToolResults(tools.Results(outcomes)) {
		slog.Warn("tool results not sent", "session_id", ls.id, "calls", len(calls))
	}
	for _, o := range outcomes {
		if o.Memory != "" {
			e.appendMemory(memory.RoleAssistant, o.Memory)
		}
		if o.Notice != "" {
			e.startAction(o.Notice)
		}
	}
	e.machine.Resume()
}

// startAction shows a notice that expires after the configured TTL. A newer
// notice replaces an older one.
func (e *Engine) startAction(text string) {
	e.actionID++
	id := e.actionID
	e.action = text
	e.emit(Event{Type: EventActionStarted, Action: text})

	time.AfterFunc(e.cfg.ActionTTL, func() {
		e.post(nil, func() {
			if e.actionID == id && e.action != "" {
				e.clearAction()
			}
		})
	})
}

func (e *Engine) clearAction() {
	if e.action == "" {
		return
	}
	text := e.action
	e.action = ""
	e.emit(Event{Type: EventActionExpired, Action: text})
}
