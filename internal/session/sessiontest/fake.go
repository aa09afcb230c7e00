// Package sessiontest provides in-memory session doubles for tests.
package sessiontest

import (
	"context"
	"errors"
	"sync"

	"github.com/hubenschmidt/live-assistant/internal/session"
)

// ErrClosed is returned by Receive after Close.
var ErrClosed = errors.New("sessiontest: channel closed")

// Channel records outbound traffic and replays pushed inbound events.
type Channel struct {
	inbound chan session.Event
	fail    chan error
	closed  chan struct{}

	mu         sync.Mutex
	media      []session.Media
	texts      []string
	results    [][]session.ToolResult
	closeCount int
	sendErr    error
	sendGate   chan struct{}
}

func NewChannel() *Channel {
	return &Channel{
		inbound: make(chan session.Event, 64),
		fail:    make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

// Push delivers an inbound event to the next Receive.
func (c *Channel) Push(ev session.Event) { c.inbound <- ev }

// Fail makes the next Receive return err, as a remote error or close would.
func (c *Channel) Fail(err error) { c.fail <- err }

// FailSends makes every subsequent send return err.
func (c *Channel) FailSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

// HoldSends blocks every send until the returned release func is called.
func (c *Channel) HoldSends() (release func()) {
	gate := make(chan struct{})
	c.mu.Lock()
	c.sendGate = gate
	c.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (c *Channel) beforeSend() error {
	c.mu.Lock()
	gate, err := c.sendGate, c.sendErr
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (c *Channel) SendMedia(m session.Media) error {
	if err := c.beforeSend(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.media = append(c.media, m)
	return nil
}

func (c *Channel) SendText(text string) error {
	if err := c.beforeSend(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *Channel) SendToolResults(results []session.ToolResult) error {
	if err := c.beforeSend(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, results)
	return nil
}

func (c *Channel) Receive() (session.Event, error) {
	select {
	case <-c.closed:
		return session.Event{}, ErrClosed
	default:
	}
	select {
	case ev := <-c.inbound:
		return ev, nil
	case err := <-c.fail:
		return session.Event{}, err
	case <-c.closed:
		return session.Event{}, ErrClosed
	}
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCount++
	if c.closeCount == 1 {
		close(c.closed)
	}
	return nil
}

// Media returns the realtime input sent so far, optionally filtered by kind.
func (c *Channel) Media(kind session.MediaKind) []session.Media {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []session.Media
	for _, m := range c.media {
		if kind == "" || m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func (c *Channel) Texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

// Results returns every tool-result batch in send order.
func (c *Channel) Results() [][]session.ToolResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]session.ToolResult(nil), c.results...)
}

func (c *Channel) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount
}

// Dialer hands out a prepared Channel.
type Dialer struct {
	Channel *Channel
	Err     error
	// Gate, when set, blocks Dial until it is closed or ctx ends.
	Gate chan struct{}

	mu      sync.Mutex
	configs []session.Config
}

func (d *Dialer) Dial(ctx context.Context, cfg session.Config) (session.Channel, error) {
	d.mu.Lock()
	d.configs = append(d.configs, cfg)
	d.mu.Unlock()
	if d.Gate != nil {
		select {
		case <-d.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Channel, nil
}

// Configs returns the config of every Dial call.
func (d *Dialer) Configs() []session.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]session.Config(nil), d.configs...)
}
