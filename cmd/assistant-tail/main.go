// Command assistant-tail follows a running assistant's event stream, prints
// each event, and reports how long the assistant spent in each mode.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	url := flag.String("url", "ws://127.0.0.1:8090/ws/events", "assistant event stream URL")
	duration := flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	commands := flag.String("command", "", "comma-separated commands to send after connecting, e.g. connect,vision_tier=high,text=hi")
	levels := flag.Bool("levels", false, "print level events")
	flag.Parse()

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *url, err)
		os.Exit(1)
	}
	defer conn.Close()

	for _, c := range splitCommands(*commands) {
		if err = conn.WriteJSON(parseCommand(c)); err != nil {
			fmt.Fprintf(os.Stderr, "send %s: %v\n", c, err)
			os.Exit(1)
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if *duration > 0 {
			select {
			case <-stop:
			case <-time.After(*duration):
			}
		} else {
			<-stop
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	t := newTally(time.Now)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		ev, ok := t.observe(data)
		if !ok {
			continue
		}
		if ev.Type == "level" && !*levels {
			continue
		}
		fmt.Println(formatEvent(ev))
	}
	t.finish()
	t.print(os.Stdout)
}

func splitCommands(s string) []string {
	var out []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// commandArgs names the field that carries a command's value.
var commandArgs = map[string]string{
	"vision_tier": "tier",
	"text":        "text",
}

// parseCommand turns "type" or "type=value" into a command message.
func parseCommand(s string) map[string]string {
	name, value, hasValue := strings.Cut(s, "=")
	msg := map[string]string{"type": name}
	if !hasValue {
		return msg
	}
	field, ok := commandArgs[name]
	if !ok {
		field = "value"
	}
	msg[field] = value
	return msg
}

type event struct {
	Type   string    `json:"type"`
	At     time.Time `json:"at"`
	Mode   string    `json:"mode"`
	Level  float64   `json:"level"`
	Muted  bool      `json:"muted"`
	Action string    `json:"action"`
	Error  string    `json:"error"`
	Vision bool      `json:"vision"`
	Tier   string    `json:"tier"`
	Entry  *struct {
		Role string `json:"role"`
		Text string `json:"text"`
	} `json:"entry"`
}

func formatEvent(ev event) string {
	switch ev.Type {
	case "state":
		return fmt.Sprintf("state   mode=%s muted=%t vision=%t tier=%s", ev.Mode, ev.Muted, ev.Vision, ev.Tier)
	case "mode":
		return "mode    " + ev.Mode
	case "level":
		return fmt.Sprintf("level   %.4f", ev.Level)
	case "mute":
		return fmt.Sprintf("mute    %t", ev.Muted)
	case "memory":
		if ev.Entry == nil {
			return "memory"
		}
		return fmt.Sprintf("memory  %s: %s", ev.Entry.Role, ev.Entry.Text)
	case "action_started":
		return "action  " + ev.Action
	case "action_expired":
		return "action  (cleared)"
	case "vision":
		return fmt.Sprintf("vision  %t tier=%s", ev.Vision, ev.Tier)
	case "error":
		return "error   " + ev.Error
	default:
		return ev.Type
	}
}

// tally counts events and accumulates the time spent in each mode.
type tally struct {
	now     func() time.Time
	counts  map[string]int
	dwell   map[string][]float64
	mode    string
	since   time.Time
	dropped int
}

func newTally(now func() time.Time) *tally {
	return &tally{now: now, counts: map[string]int{}, dwell: map[string][]float64{}}
}

func (t *tally) observe(data []byte) (event, bool) {
	var ev event
	if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
		t.dropped++
		return ev, false
	}
	t.counts[ev.Type]++
	if ev.Mode != "" && ev.Mode != t.mode {
		t.switchMode(ev.Mode)
	}
	return ev, true
}

func (t *tally) switchMode(next string) {
	now := t.now()
	if t.mode != "" {
		t.dwell[t.mode] = append(t.dwell[t.mode], float64(now.Sub(t.since).Milliseconds()))
	}
	t.mode = next
	t.since = now
}

func (t *tally) finish() {
	if t.mode != "" {
		t.switchMode("")
	}
}

func (t *tally) print(w io.Writer) {
	fmt.Fprintf(w, "\n=== Event Summary ===\n")
	types := make([]string, 0, len(t.counts))
	for k := range t.counts {
		types = append(types, k)
	}
	sort.Strings(types)
	for _, k := range types {
		fmt.Fprintf(w, "%-15s %6d\n", k, t.counts[k])
	}
	if t.dropped > 0 {
		fmt.Fprintf(w, "%-15s %6d\n", "unparsed", t.dropped)
	}

	if len(t.dwell) == 0 {
		fmt.Fprintln(w, "No mode changes observed")
		return
	}
	modes := make([]string, 0, len(t.dwell))
	for k := range t.dwell {
		modes = append(modes, k)
	}
	sort.Strings(modes)
	fmt.Fprintf(w, "\n%-13s %6s %8s %8s %8s\n", "Mode", "visits", "p50", "p95", "total")
	for _, m := range modes {
		d := t.dwell[m]
		var total float64
		for _, v := range d {
			total += v
		}
		fmt.Fprintf(w, "%-13s %6d %6.0fms %6.0fms %6.0fms\n", m, len(d), percentile(d, 50), percentile(d, 95), total)
	}
}

func percentile(data []float64, pct float64) float64 {
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	idx := int(math.Ceil(pct/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
