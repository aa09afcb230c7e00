// Package ws bridges the engine to a presentation client over a websocket:
// engine events go out as JSON text frames and control commands come in.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/hubenschmidt/live-assistant/internal/engine"
	"github.com/hubenschmidt/live-assistant/internal/metrics"
	"github.com/hubenschmidt/live-assistant/internal/vision"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Engine is the part of *engine.Engine the bridge drives.
type Engine interface {
	Connect(ctx context.Context) error
	Disconnect()
	SetMuted(muted bool)
	EnableVision(ctx context.Context) error
	DisableVision()
	SetVisionTier(tier vision.Tier) error
	SendText(text string) error
	Subscribe() (<-chan engine.Event, func())
	Snapshot() engine.State
}

// HandlerConfig holds the engine and client limits.
type HandlerConfig struct {
	Engine     Engine
	MaxClients int
	// LevelRate caps level events per second per client.
	LevelRate float64
}

// Handler serves presentation clients with admission control.
type Handler struct {
	cfg HandlerConfig
	sem chan struct{}
}

// NewHandler creates a handler with a client limit.
func NewHandler(cfg HandlerConfig) *Handler {
	maxClients := cfg.MaxClients
	if maxClients <= 0 {
		maxClients = 8
	}
	if cfg.LevelRate <= 0 {
		cfg.LevelRate = 15
	}
	return &Handler{
		cfg: cfg,
		sem: make(chan struct{}, maxClients),
	}
}

// command is a client control message.
type command struct {
	Type string `json:"type"`
	Tier string `json:"tier,omitempty"`
	Text string `json:"text,omitempty"`
}

// stateMessage is the first frame a client receives.
type stateMessage struct {
	Type string `json:"type"`
	engine.State
}

type errorMessage struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Error   string `json:"error"`
}

// ServeHTTP upgrades the connection and runs the client session.
// Returns 503 if at max client capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	metrics.EventSubscribers.Inc()
	defer metrics.EventSubscribers.Dec()

	h.runClient(conn)
}

func (h *Handler) runClient(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	send := newSender(conn)
	events, unsubscribe := h.cfg.Engine.Subscribe()
	defer unsubscribe()

	send(stateMessage{Type: "state", State: h.cfg.Engine.Snapshot()})
	slog.Info("presentation client connected", "remote", conn.RemoteAddr().String())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		forwardEvents(ctx, events, send, rate.NewLimiter(rate.Limit(h.cfg.LevelRate), 1))
	}()

	h.readCommands(ctx, conn, send, &wg)
	cancel()
	wg.Wait()
	slog.Info("presentation client disconnected", "remote", conn.RemoteAddr().String())
}

// forwardEvents writes engine events until ctx ends or the stream closes.
// Level events beyond the limiter's rate are skipped.
func forwardEvents(ctx context.Context, events <-chan engine.Event, send func(any), levels *rate.Limiter) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type == engine.EventLevelChanged && !levels.Allow() {
				continue
			}
			send(ev)
		}
	}
}

// readCommands reads control messages until the client goes away. Commands
// left running in the background are tracked in wg.
func (h *Handler) readCommands(ctx context.Context, conn *websocket.Conn, send func(any), wg *sync.WaitGroup) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			slog.Debug("client read ended", "error", err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var cmd command
		if err = json.Unmarshal(data, &cmd); err != nil {
			send(errorMessage{Type: "error", Command: "", Error: "malformed command"})
			continue
		}
		h.execute(ctx, cmd, send, wg)
	}
}

// execute applies one command. Connect and vision_on may wait on a
// permission prompt, so they run in the background under the client's
// context; once the client is gone their errors are not reported.
func (h *Handler) execute(ctx context.Context, cmd command, send func(any), wg *sync.WaitGroup) {
	eng := h.cfg.Engine
	report := func(err error) {
		if err != nil && ctx.Err() == nil {
			send(errorMessage{Type: "error", Command: cmd.Type, Error: err.Error()})
		}
	}
	background := func(fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report(fn())
		}()
	}

	switch cmd.Type {
	case "connect":
		background(func() error { return eng.Connect(ctx) })
	case "disconnect":
		eng.Disconnect()
	case "mute":
		eng.SetMuted(true)
	case "unmute":
		eng.SetMuted(false)
	case "vision_on":
		background(func() error { return eng.EnableVision(ctx) })
	case "vision_off":
		eng.DisableVision()
	case "vision_tier":
		report(eng.SetVisionTier(vision.Tier(cmd.Tier)))
	case "text":
		report(eng.SendText(cmd.Text))
	default:
		send(errorMessage{Type: "error", Command: cmd.Type, Error: "unknown command"})
	}
}

func newSender(conn *websocket.Conn) func(any) {
	var mu sync.Mutex
	return func(msg any) {
		jsonBytes, err := json.Marshal(msg)
		if err != nil {
			slog.Error("marshal event", "error", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if err = conn.WriteMessage(websocket.TextMessage, jsonBytes); err != nil {
			slog.Debug("write event", "error", err)
		}
	}
}
