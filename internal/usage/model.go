package usage

import (
	"errors"
	"time"
)

// ErrUserRequired indicates a call without a user id.
var ErrUserRequired = errors.New("user id required")

// Usage is a user's monthly processing counter.
type Usage struct {
	SubscriptionTier            string
	DocumentsLimit              int
	DocumentsProcessedThisMonth int
	UsageResetDate              time.Time
}

// CanUpload reports whether another document fits in the current period.
func (u Usage) CanUpload() bool {
	return u.DocumentsProcessedThisMonth < u.DocumentsLimit
}

// Remaining returns how many more documents fit in the current period.
func (u Usage) Remaining() int {
	if n := u.DocumentsLimit - u.DocumentsProcessedThisMonth; n > 0 {
		return n
	}
	return 0
}

// NextResetDate returns 00:00 UTC on the first day of the month after now.
func NextResetDate(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// expired reports whether the period ended at or before now.
func (u Usage) expired(now time.Time) bool {
	return !now.Before(u.UsageResetDate)
}

// rollover applies the lazy monthly reset.
func (u Usage) rollover(now time.Time) (Usage, bool) {
	if !u.expired(now) {
		return u, false
	}
	u.DocumentsProcessedThisMonth = 0
	u.UsageResetDate = NextResetDate(now)
	return u, true
}
