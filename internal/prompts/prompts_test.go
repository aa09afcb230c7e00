package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForSession(t *testing.T) {
	assert.Equal(t, DefaultSystem, ForSession(""))
	assert.Equal(t, DefaultSystem, ForSession("   "))
	assert.Equal(t, "be terse", ForSession("be terse"))
}

func TestWithApps(t *testing.T) {
	assert.Equal(t, "base", WithApps("base", nil))
	assert.Equal(t, "base\n\nInstalled apps: Maps, Spotify.", WithApps("base", []string{"Maps", "Spotify"}))
}
