package engine

import (
	"sync"
	"time"

	"github.com/hubenschmidt/live-assistant/internal/memory"
	"github.com/hubenschmidt/live-assistant/internal/mode"
	"github.com/hubenschmidt/live-assistant/internal/vision"
)

type EventType string

const (
	EventModeChanged    EventType = "mode"
	EventLevelChanged   EventType = "level"
	EventMuteChanged    EventType = "mute"
	EventMemoryAppended EventType = "memory"
	EventActionStarted  EventType = "action_started"
	EventActionExpired  EventType = "action_expired"
	EventErrorRaised    EventType = "error"
	EventVisionChanged  EventType = "vision"
)

// Event is an observable state change. Mode is always the mode at the time
// of the event; the other fields are set according to Type.
type Event struct {
	Type   EventType     `json:"type"`
	At     time.Time     `json:"at"`
	Mode   mode.Mode     `json:"mode"`
	Level  float64       `json:"level,omitempty"`
	Muted  bool          `json:"muted,omitempty"`
	Entry  *memory.Entry `json:"entry,omitempty"`
	Action string        `json:"action,omitempty"`
	Error  string        `json:"error,omitempty"`
	Vision bool          `json:"vision,omitempty"`
	Tier   vision.Tier   `json:"tier,omitempty"`
}

const subscriberBuffer = 64

// broadcaster fans events out to subscribers. Slow subscribers miss events
// rather than stall the event loop.
type broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func (b *broadcaster) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[chan Event]struct{})
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
