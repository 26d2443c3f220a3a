package retry_test

import (
	"testing"
	"time"

	"pdfbot/internal/models"
	"pdfbot/internal/retry"
)

func TestDecaySchedule_Delay(t *testing.T) {
	s := retry.DefaultSchedule()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 1 * time.Minute},
		{2, 3 * time.Minute},
		{3, 10 * time.Minute},
		{4, 30 * time.Minute},
		{5, 1 * time.Hour},
		{6, 0},
		{50, 0},
	}
	for _, tt := range tests {
		if got := s.Delay(nil, tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestStrategyFunc(t *testing.T) {
	var seen *models.Job
	f := retry.StrategyFunc(func(job *models.Job, attempt int) time.Duration {
		seen = job
		return time.Duration(attempt) * time.Second
	})

	j := &models.Job{ID: "job-1"}
	if got := f.Delay(j, 3); got != 3*time.Second {
		t.Errorf("Delay(3) = %v, want 3s", got)
	}
	if seen != j {
		t.Error("expected the job to be passed through")
	}
}

func TestPolicy_Eligible(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	p := retry.Policy{Strategy: retry.DefaultSchedule(), MaxTries: 5}

	tests := []struct {
		name     string
		attempts []time.Time
		want     bool
	}{
		{"no attempts", nil, true},
		{"one attempt, too soon", []time.Time{now.Add(-30 * time.Second)}, false},
		{"one attempt, waited 1m", []time.Time{now.Add(-time.Minute)}, true},
		{
			"three attempts, 9m since last",
			[]time.Time{now.Add(-time.Hour), now.Add(-30 * time.Minute), now.Add(-9 * time.Minute)},
			false,
		},
		{
			"three attempts, 10m since last",
			[]time.Time{now.Add(-time.Hour), now.Add(-30 * time.Minute), now.Add(-10 * time.Minute)},
			true,
		},
		{
			"ceiling reached",
			[]time.Time{now.Add(-5 * time.Hour), now.Add(-4 * time.Hour), now.Add(-3 * time.Hour), now.Add(-2 * time.Hour), now.Add(-2 * time.Hour)},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Eligible(nil, tt.attempts, now); got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicy_ImmediateRetryPastSchedule(t *testing.T) {
	now := time.Now()
	p := retry.Policy{Strategy: retry.DecaySchedule{time.Minute}, MaxTries: 10}

	attempts := []time.Time{now.Add(-time.Hour), now}
	if !p.Eligible(nil, attempts, now) {
		t.Error("expected immediate eligibility once the schedule is exhausted")
	}
	if !p.OutlivesSchedule() {
		t.Error("expected OutlivesSchedule to flag the short schedule")
	}

	full := make([]time.Time, 10)
	if p.Eligible(nil, full, now) {
		t.Error("expected the ceiling to still apply")
	}
}

func TestPolicy_OutlivesSchedule(t *testing.T) {
	if retry.DefaultPolicy().OutlivesSchedule() {
		t.Error("default policy should be covered by its schedule")
	}
	p := retry.Policy{Strategy: retry.StrategyFunc(func(*models.Job, int) time.Duration { return 0 }), MaxTries: 100}
	if p.OutlivesSchedule() {
		t.Error("custom strategies are never flagged")
	}
}

func TestPolicy_Exhausted(t *testing.T) {
	p := retry.Policy{MaxTries: 2}
	if p.Exhausted(1) {
		t.Error("1 of 2 attempts should not be exhausted")
	}
	if !p.Exhausted(2) {
		t.Error("2 of 2 attempts should be exhausted")
	}
}
