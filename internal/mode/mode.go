// Package mode holds the assistant's externally observable activity state and
// the rules that move it between values.
package mode

// Mode is the assistant's current activity. Exactly one value is active.
type Mode int

const (
	Disconnected Mode = iota
	Idle
	Listening
	Speaking
	Processing
)

var names = [...]string{
	Disconnected: "disconnected",
	Idle:         "idle",
	Listening:    "listening",
	Speaking:     "speaking",
	Processing:   "processing",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(names) {
		return "unknown"
	}
	return names[m]
}

// MarshalText encodes the mode by name for JSON events.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// DefaultThreshold is the capture level above which the user counts as speaking.
const DefaultThreshold = 0.01

// Machine applies transition rules to a Mode. It is not safe for concurrent
// use; the engine drives it from its event loop only.
type Machine struct {
	mode      Mode
	threshold float64
	onChange  func(from, to Mode)
}

// NewMachine starts disconnected. onChange, if set, fires after every actual change.
func NewMachine(threshold float64, onChange func(from, to Mode)) *Machine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Machine{mode: Disconnected, threshold: threshold, onChange: onChange}
}

func (m *Machine) Mode() Mode { return m.mode }

func (m *Machine) set(to Mode) {
	from := m.mode
	if from == to {
		return
	}
	m.mode = to
	if m.onChange != nil {
		m.onChange(from, to)
	}
}

func (m *Machine) connected() bool { return m.mode != Disconnected }

// Opened moves to idle when a session opens and on every setup acknowledgment.
func (m *Machine) Opened() {
	m.set(Idle)
}

// ObserveLevel applies a capture tick's level. Muted ticks never change the
// mode, and speaking is never demoted by the microphone.
func (m *Machine) ObserveLevel(level float64, muted bool) {
	if muted || !m.connected() {
		return
	}
	switch {
	case level > m.threshold && (m.mode == Idle || m.mode == Listening):
		m.set(Listening)
	case level < m.threshold && m.mode == Listening:
		m.set(Idle)
	}
}

// AudioReceived marks the first inbound audio of a model turn.
func (m *Machine) AudioReceived() {
	if m.connected() {
		m.set(Speaking)
	}
}

// Processing marks a transient while local work runs on the model's behalf.
func (m *Machine) Processing() {
	if m.connected() {
		m.set(Processing)
	}
}

// Resume leaves processing for idle once the local work has finished.
func (m *Machine) Resume() {
	if m.mode == Processing {
		m.set(Idle)
	}
}

// TurnComplete returns to idle at the end of a model turn.
func (m *Machine) TurnComplete() {
	if m.connected() {
		m.set(Idle)
	}
}

// Interrupted returns to idle when the user talks over the model.
func (m *Machine) Interrupted() {
	if m.connected() {
		m.set(Idle)
	}
}

// Closed moves to disconnected. Closing twice is a no-op.
func (m *Machine) Closed() {
	m.set(Disconnected)
}
