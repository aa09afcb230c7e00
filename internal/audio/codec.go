package audio

import (
	"fmt"
	"strconv"
	"strings"
)

// pcmMIMEPrefix is the media type the live service uses for raw 16-bit PCM.
const pcmMIMEPrefix = "audio/pcm"

// MIMEType returns the wire media type for PCM at the given sample rate.
func MIMEType(sampleRate int) string {
	return fmt.Sprintf("%s;rate=%d", pcmMIMEPrefix, sampleRate)
}

// IsPCM reports whether mime describes raw PCM audio.
func IsPCM(mime string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), pcmMIMEPrefix)
}

// ParseRate extracts the rate parameter from a PCM media type such as
// "audio/pcm;rate=24000". Returns fallback when the parameter is missing or invalid.
func ParseRate(mime string, fallback int) int {
	for _, param := range strings.Split(mime, ";")[1:] {
		key, val, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "rate") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || n <= 0 {
			return fallback
		}
		return n
	}
	return fallback
}
