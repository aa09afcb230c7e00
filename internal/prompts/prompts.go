package prompts

import (
	"fmt"
	"strings"
)

const DefaultSystem = "You are a voice assistant running on the user's computer. " +
	"Speak briefly and naturally. When the user asks you to open an app, play something, " +
	"call or message someone, or change a device setting, call the matching tool instead of describing how to do it. " +
	"If camera frames arrive, use them only when the user refers to what they are showing you."

// ForSession resolves the final system instruction for a live session.
func ForSession(systemPrompt string) string {
	if strings.TrimSpace(systemPrompt) != "" {
		return systemPrompt
	}
	return DefaultSystem
}

// WithApps appends the installed application names so the model can match
// spoken app names to real ones.
func WithApps(instruction string, apps []string) string {
	if len(apps) == 0 {
		return instruction
	}
	return fmt.Sprintf("%s\n\nInstalled apps: %s.", instruction, strings.Join(apps, ", "))
}
