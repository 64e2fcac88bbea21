package models

import "golang.org/x/time/rate"

// Tier is the subscription tier attached to a portfolio.
type Tier string

const (
	TierFree      Tier = "free"
	TierPro       Tier = "pro"
	TierUnlimited Tier = "unlimited"
)

// ParseTier normalizes a tier string, defaulting to free for unknown values.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierPro:
		return TierPro
	case TierUnlimited:
		return TierUnlimited
	default:
		return TierFree
	}
}

// RateLimit returns the per-user request rate and burst for the tier.
// Unlimited tier is effectively uncapped.
func (t Tier) RateLimit() (rate.Limit, int) {
	switch t {
	case TierPro:
		return rate.Limit(300.0 / 60.0), 300
	case TierUnlimited:
		return rate.Inf, 0
	default:
		return rate.Limit(60.0 / 60.0), 60
	}
}
