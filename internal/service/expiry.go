package service

import (
	"time"

	"github.com/examforge/exam-engine/internal/model"
)

// ResolveExpiry returns the status the attempt should hold at instant now.
// An ACTIVE attempt whose deadline has passed resolves to EXPIRED; any other
// state passes through unchanged. Expiry is observed at access time on reads
// and submits — there is no background timer pushing the transition.
func ResolveExpiry(a *model.Attempt, now time.Time) model.AttemptStatus {
	if a.Status == model.AttemptStatusActive && now.After(a.EndsAt) {
		return model.AttemptStatusExpired
	}
	return a.Status
}

// RemainingSeconds returns the time left on the attempt clock, clamped to
// zero once the deadline has passed.
func RemainingSeconds(a *model.Attempt, now time.Time) float64 {
	remaining := a.EndsAt.Sub(now).Seconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}
