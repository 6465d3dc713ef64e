package usage

import "time"

const (
	defaultTier  = "free"
	defaultLimit = 5
)

// Defaults seed the counter the first time a user is seen.
type Defaults struct {
	Tier  string
	Limit int
}

func (d Defaults) normalized() Defaults {
	if d.Tier == "" {
		d.Tier = defaultTier
	}
	if d.Limit <= 0 {
		d.Limit = defaultLimit
	}
	return d
}

func (d Defaults) newUsage(now time.Time) Usage {
	return Usage{
		SubscriptionTier: d.Tier,
		DocumentsLimit:   d.Limit,
		UsageResetDate:   NextResetDate(now),
	}
}
