package alerter

import "strings"

// TierThresholds derives a tier from a class-1 probability. The defaults are
// the validated cut points; callers may override via config.
type TierThresholds struct {
	High   float64
	Medium float64
}

var DefaultTierThresholds = TierThresholds{High: 0.7, Medium: 0.3}

func (t TierThresholds) Tier(p float64) string {
	switch {
	case p > t.High:
		return TierHigh
	case p > t.Medium:
		return TierMedium
	default:
		return TierLow
	}
}

// NormalizeTier maps loose tier spellings to the canonical names:
// - high/h/3 -> High
// - medium/med/m/2 -> Medium
// - else -> Low
func NormalizeTier(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "high", "h", "3":
		return TierHigh
	case "medium", "med", "m", "2":
		return TierMedium
	default:
		return TierLow
	}
}

// tierRank orders tiers for minimum-tier comparisons in the notification
// plan.
func tierRank(tier string) int {
	switch tier {
	case TierHigh:
		return 2
	case TierMedium:
		return 1
	default:
		return 0
	}
}
