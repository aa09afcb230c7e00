// Package memory keeps the in-session record of what was said and done.
package memory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who an entry is attributed to.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one utterance or action shown to the user. Entries are values and
// never change after they are appended.
type Entry struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is an append-only ordered list of entries. It is owned by the engine's
// event loop and not safe for concurrent use.
type Log struct {
	entries []Entry
	now     func() time.Time
}

// NewLog creates an empty log. now defaults to time.Now.
func NewLog(now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{now: now}
}

// Append records text for role and returns the new entry. Timestamps never
// run backwards even if the wall clock does.
func (l *Log) Append(role Role, text string) Entry {
	ts := l.now()
	if n := len(l.entries); n > 0 && ts.Before(l.entries[n-1].Timestamp) {
		ts = l.entries[n-1].Timestamp
	}
	e := Entry{ID: uuid.NewString(), Role: role, Text: text, Timestamp: ts}
	l.entries = append(l.entries, e)
	return e
}

// Entries returns a copy of the log in append order.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int { return len(l.entries) }

// Transcript accumulates the incremental transcription fragments of the
// current turn, one buffer per direction.
type Transcript struct {
	input  strings.Builder
	output strings.Builder
}

// AddInput appends a fragment of the user's transcribed speech.
func (t *Transcript) AddInput(fragment string) { t.input.WriteString(fragment) }

// AddOutput appends a fragment of the assistant's transcribed speech.
func (t *Transcript) AddOutput(fragment string) { t.output.WriteString(fragment) }

// Flush appends one entry per non-empty direction, user first, then clears
// both buffers. Returns the entries it appended.
func (t *Transcript) Flush(log *Log) []Entry {
	var out []Entry
	if text := strings.TrimSpace(t.input.String()); text != "" {
		out = append(out, log.Append(RoleUser, text))
	}
	if text := strings.TrimSpace(t.output.String()); text != "" {
		out = append(out, log.Append(RoleAssistant, text))
	}
	t.input.Reset()
	t.output.Reset()
	return out
}
