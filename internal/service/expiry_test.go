package service

import (
	"testing"
	"time"

	"github.com/examforge/exam-engine/internal/model"
)

func TestResolveExpiry(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status model.AttemptStatus
		endsAt time.Time
		now    time.Time
		want   model.AttemptStatus
	}{
		{
			name:   "active within deadline",
			status: model.AttemptStatusActive,
			endsAt: base.Add(30 * time.Minute),
			now:    base.Add(10 * time.Minute),
			want:   model.AttemptStatusActive,
		},
		{
			name:   "active exactly at deadline",
			status: model.AttemptStatusActive,
			endsAt: base.Add(30 * time.Minute),
			now:    base.Add(30 * time.Minute),
			want:   model.AttemptStatusActive,
		},
		{
			name:   "active past deadline",
			status: model.AttemptStatusActive,
			endsAt: base.Add(30 * time.Minute),
			now:    base.Add(30*time.Minute + time.Second),
			want:   model.AttemptStatusExpired,
		},
		{
			name:   "submitted passes through untouched",
			status: model.AttemptStatusSubmitted,
			endsAt: base,
			now:    base.Add(time.Hour),
			want:   model.AttemptStatusSubmitted,
		},
		{
			name:   "expired stays expired",
			status: model.AttemptStatusExpired,
			endsAt: base,
			now:    base.Add(time.Hour),
			want:   model.AttemptStatusExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &model.Attempt{Status: tt.status, EndsAt: tt.endsAt}
			if got := ResolveExpiry(a, tt.now); got != tt.want {
				t.Errorf("ResolveExpiry() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRemainingSeconds(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	a := &model.Attempt{EndsAt: base.Add(90 * time.Second)}

	if got := RemainingSeconds(a, base); got != 90 {
		t.Errorf("RemainingSeconds() = %v, want 90", got)
	}
	if got := RemainingSeconds(a, base.Add(2*time.Minute)); got != 0 {
		t.Errorf("RemainingSeconds() past deadline = %v, want 0", got)
	}
}
