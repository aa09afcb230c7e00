package vision

import "fmt"

// Tier is a camera resolution preset.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Size returns the acquisition resolution for the tier.
func (t Tier) Size() (width, height int) {
	switch t {
	case TierLow:
		return 320, 240
	case TierHigh:
		return 1280, 720
	default:
		return 640, 480
	}
}

// ParseTier accepts low, medium or high.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case TierLow, TierMedium, TierHigh:
		return t, nil
	default:
		return "", fmt.Errorf("unknown vision tier %q", s)
	}
}
