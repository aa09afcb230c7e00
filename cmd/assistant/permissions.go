package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hubenschmidt/live-assistant/internal/engine"
)

var permissionPrompts = map[engine.PermissionKind]string{
	engine.PermissionAudio: "Allow microphone access?",
	engine.PermissionVideo: "Allow camera access?",
}

// terminalPermissions asks on the terminal, one question at a time.
type terminalPermissions struct {
	mu    sync.Mutex
	in    *bufio.Reader
	out   io.Writer
	lines chan string
	once  sync.Once
}

func newTerminalPermissions(in io.Reader, out io.Writer) *terminalPermissions {
	return &terminalPermissions{in: bufio.NewReader(in), out: out, lines: make(chan string)}
}

// readLines feeds stdin lines to whichever prompt is waiting.
func (p *terminalPermissions) readLines() {
	for {
		line, err := p.in.ReadString('\n')
		if line != "" || err == nil {
			p.lines <- line
		}
		if err != nil {
			close(p.lines)
			return
		}
	}
}

func (p *terminalPermissions) Request(ctx context.Context, kind engine.PermissionKind) (bool, error) {
	p.once.Do(func() { go p.readLines() })
	p.mu.Lock()
	defer p.mu.Unlock()

	question, ok := permissionPrompts[kind]
	if !ok {
		question = fmt.Sprintf("Allow %s access?", kind)
	}
	fmt.Fprintf(p.out, "%s [y/N] ", question)

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return false, io.EOF
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	}
}
