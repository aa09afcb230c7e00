package session

import (
	"log/slog"
	"sync"

	"github.com/hubenschmidt/live-assistant/internal/metrics"
)

type outbound struct {
	media   *Media
	text    string
	results []ToolResult
}

func (o outbound) kind() string {
	switch {
	case o.media != nil:
		return string(o.media.Kind)
	case o.results != nil:
		return "tool_results"
	default:
		return "text"
	}
}

// Outbox serialises every send on a channel through one writer goroutine, so
// callers never block on the network and per-direction order is the order
// of enqueueing. Media is dropped when the queue is full; tool results and
// text wait for room.
type Outbox struct {
	ch      Channel
	queue   chan outbound
	stop    chan struct{}
	done    chan struct{}
	onError func(error)
	once    sync.Once
}

// NewOutbox starts the writer. onError is called from the writer goroutine
// with the first send failure, after which the writer exits and further
// sends are refused.
func NewOutbox(ch Channel, size int, onError func(error)) *Outbox {
	if size <= 0 {
		size = 64
	}
	o := &Outbox{
		ch:      ch,
		queue:   make(chan outbound, size),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		onError: onError,
	}
	go o.run()
	return o
}

func (o *Outbox) run() {
	defer close(o.done)
	for {
		select {
		case <-o.stop:
			return
		case item := <-o.queue:
			if err := o.write(item); err != nil {
				select {
				case <-o.stop:
					return
				default:
				}
				slog.Warn("session send failed", "kind", item.kind(), "error", err)
				if o.onError != nil {
					o.onError(err)
				}
				return
			}
		}
	}
}

func (o *Outbox) write(item outbound) error {
	switch {
	case item.media != nil:
		if err := o.ch.SendMedia(*item.media); err != nil {
			return err
		}
		metrics.OutboundBytes.WithLabelValues(string(item.media.Kind)).Add(float64(len(item.media.Data)))
		return nil
	case item.results != nil:
		return o.ch.SendToolResults(item.results)
	default:
		return o.ch.SendText(item.text)
	}
}

// SendMedia queues realtime input without waiting. Returns false if the
// item was dropped.
func (o *Outbox) SendMedia(m Media) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.queue <- outbound{media: &m}:
		return true
	default:
		metrics.OutboundDropped.WithLabelValues(string(m.Kind)).Inc()
		return false
	}
}

// SendText queues typed user input.
func (o *Outbox) SendText(text string) bool {
	return o.enqueue(outbound{text: text})
}

// SendToolResults queues one batch of results as a single message.
func (o *Outbox) SendToolResults(results []ToolResult) bool {
	if results == nil {
		results = []ToolResult{}
	}
	return o.enqueue(outbound{results: results})
}

func (o *Outbox) enqueue(item outbound) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.queue <- item:
		return true
	case <-o.done:
		return false
	}
}

// Close stops the writer and waits for it. Queued items are discarded.
// Closing twice is a no-op.
func (o *Outbox) Close() {
	o.once.Do(func() { close(o.stop) })
	<-o.done
}
