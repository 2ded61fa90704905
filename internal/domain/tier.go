package domain

import "strings"

// Tier is the user balance category that funds a batch
type Tier string

const (
	TierMonthly  Tier = "monthly"
	TierLifetime Tier = "lifetime"
	TierTrial    Tier = "trial"
	TierDaily    Tier = "daily"
)

// ParseTier normalizes a stored tier string. "lite" is the plan name for the daily tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly":
		return TierMonthly, nil
	case "lifetime":
		return TierLifetime, nil
	case "trial":
		return TierTrial, nil
	case "daily", "lite":
		return TierDaily, nil
	default:
		return "", ErrUnknownTier
	}
}

// TierForPlan derives the tier a user's current plan consumes from.
// Only used for batches submitted before funding_tier was recorded.
func TierForPlan(plan string) Tier {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case "lifetime":
		return TierLifetime
	case "monthly", "pro", "starter", "agency":
		return TierMonthly
	case "lite", "daily", "free":
		return TierDaily
	default:
		return TierTrial
	}
}
