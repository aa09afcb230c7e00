// Package session is the duplex channel to the remote live inference service.
// Outbound media is fire-and-forget; inbound messages are delivered as Events
// in transport order.
package session

import "context"

// MediaKind tags realtime input.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaImage MediaKind = "image"
)

// Media is one realtime input payload.
type Media struct {
	Kind     MediaKind
	MIMEType string
	Data     []byte
}

// ToolCall is a remote request to run a named local action.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult answers exactly one ToolCall and echoes its ID.
type ToolResult struct {
	ID       string
	Name     string
	Response map[string]any
}

// Parameter describes one string argument of a declared function.
type Parameter struct {
	Name        string
	Description string
	Enum        []string
	Required    bool
}

// FunctionDecl is a tool the remote model may call.
type FunctionDecl struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// Config is the capability set declared when a session opens.
type Config struct {
	APIKey              string
	Model               string
	Voice               string
	SystemInstruction   string
	InputTranscription  bool
	OutputTranscription bool
	Tools               []FunctionDecl
}

// Event is one inbound server message. Several fields may be set at once;
// consumers apply them in field order.
type Event struct {
	SetupComplete    bool
	ToolCalls        []ToolCall
	InputTranscript  string
	OutputTranscript string
	Audio            []Media
	Interrupted      bool
	TurnComplete     bool
	GoAway           bool
}

// Channel is an open session. Send methods may be called from one goroutine
// at a time; Receive from another.
type Channel interface {
	SendMedia(m Media) error
	SendText(text string) error
	SendToolResults(results []ToolResult) error
	// Receive blocks for the next inbound event. It returns an error once the
	// channel is closed locally or remotely.
	Receive() (Event, error)
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (Channel, error)
}
