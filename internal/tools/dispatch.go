package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hubenschmidt/live-assistant/internal/metrics"
	"github.com/hubenschmidt/live-assistant/internal/session"
)

// ResultSuccess is the result every dispatch reports.
const ResultSuccess = "SUCCESS"

// DeviceActions performs device-level actions. It returns a human-readable
// description of what happened.
type DeviceActions interface {
	Perform(ctx context.Context, action DeviceAction, target string) (string, error)
}

// MediaPlayer starts playback of a query on a platform.
type MediaPlayer interface {
	Play(ctx context.Context, platform, query string) error
}

// Communicator places calls and sends messages.
type Communicator interface {
	Send(ctx context.Context, method CommMethod, recipient, content string) error
}

// AppCatalog enumerates installed applications, keyed by display name.
type AppCatalog interface {
	Installed(ctx context.Context) (map[string]string, error)
}

// Collaborators bundles the local action handlers. Nil members make the
// matching actions no-ops that still succeed.
type Collaborators struct {
	Devices DeviceActions
	Media   MediaPlayer
	Comms   Communicator
	Apps    AppCatalog
}

// Outcome is the result of one call plus what the user should see.
type Outcome struct {
	Result session.ToolResult
	// Memory is the Memory Log text, empty when nothing user-visible happened.
	Memory string
	// Notice is the transient active-action label, empty for none.
	Notice string
}

// Dispatcher maps tool calls onto collaborators.
type Dispatcher struct {
	c Collaborators
}

func NewDispatcher(c Collaborators) *Dispatcher {
	return &Dispatcher{c: c}
}

// Dispatch handles a batch. Calls are independent; each yields exactly one
// Outcome whose result echoes the call's ID, in call order. Collaborator
// failures are logged and never turn into error results.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []session.ToolCall) []Outcome {
	out := make([]Outcome, 0, len(calls))
	for _, call := range calls {
		out = append(out, d.dispatchOne(ctx, call))
	}
	return out
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call session.ToolCall) Outcome {
	req := Parse(call)
	metrics.ToolCalls.WithLabelValues(req.Label()).Inc()

	o := Outcome{Result: session.ToolResult{
		ID:       call.ID,
		Name:     call.Name,
		Response: map[string]any{"result": ResultSuccess},
	}}

	switch r := req.(type) {
	case ControlDevice:
		desc := d.controlDevice(ctx, r)
		o.Memory, o.Notice = desc, desc
		if desc != "" {
			o.Result.Response["description"] = desc
		}
	case PlayMedia:
		if d.c.Media != nil {
			if err := d.c.Media.Play(ctx, r.Platform, r.Query); err != nil {
				slog.Warn("media playback failed", "platform", r.Platform, "query", r.Query, "error", err)
			}
		}
		o.Memory = fmt.Sprintf("Playing %q on %s", r.Query, r.Platform)
		o.Notice = o.Memory
	case SendCommunication:
		if d.c.Comms != nil {
			if err := d.c.Comms.Send(ctx, r.Method, r.Recipient, r.Content); err != nil {
				slog.Warn("communication failed", "method", r.Method, "error", err)
			}
		}
		o.Memory = describeCommunication(r)
		o.Notice = o.Memory
	case ListApps:
		apps := map[string]string{}
		if d.c.Apps != nil {
			listed, err := d.c.Apps.Installed(ctx)
			if err != nil {
				slog.Warn("app enumeration failed", "error", err)
			}
			if listed != nil {
				apps = listed
			}
		}
		o.Result.Response["apps"] = apps
	case Unhandled:
		slog.Info("unhandled tool call", "name", r.Name, "id", call.ID)
		o.Memory = fmt.Sprintf("Unsupported action %q attempted", r.Name)
	}
	return o
}

func (d *Dispatcher) controlDevice(ctx context.Context, r ControlDevice) string {
	fallback := describeDevice(r)
	if d.c.Devices == nil {
		return fallback
	}
	desc, err := d.c.Devices.Perform(ctx, r.Action, r.Target)
	if err != nil {
		slog.Warn("device action failed", "action", r.Action, "target", r.Target, "error", err)
		return fallback
	}
	if strings.TrimSpace(desc) == "" {
		return fallback
	}
	return desc
}

func describeDevice(r ControlDevice) string {
	if r.Target == "" {
		return fmt.Sprintf("Device action %s", r.Action)
	}
	return fmt.Sprintf("Device action %s: %s", r.Action, r.Target)
}

func describeCommunication(r SendCommunication) string {
	verb := map[CommMethod]string{
		PhoneCall:       "Calling",
		WhatsAppMessage: "Sending WhatsApp message to",
		SendEmail:       "Emailing",
		SendSMS:         "Texting",
		SendMMS:         "Sending MMS to",
	}[r.Method]
	if verb == "" {
		verb = "Contacting"
	}
	return fmt.Sprintf("%s %s", verb, r.Recipient)
}

// Results extracts the tool results of a batch, in order.
func Results(outcomes []Outcome) []session.ToolResult {
	out := make([]session.ToolResult, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Result
	}
	return out
}
