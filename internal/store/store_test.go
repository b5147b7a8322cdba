package store

import (
	"testing"
	"time"
)

func TestApplyRateHit(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	window := 24 * time.Hour

	tests := []struct {
		name        string
		counter     RateCounter
		now         time.Time
		limit       int
		wantAllowed bool
		wantCount   int
	}{
		{"first use", RateCounter{}, base, 3, true, 1},
		{"under limit", RateCounter{Count: 1, LastReset: base}, base.Add(time.Hour), 3, true, 2},
		{"at limit refused", RateCounter{Count: 3, LastReset: base}, base.Add(time.Hour), 3, false, 3},
		{"exactly window not reset", RateCounter{Count: 3, LastReset: base}, base.Add(window), 3, false, 3},
		{"window elapsed resets", RateCounter{Count: 3, LastReset: base}, base.Add(window + time.Second), 3, true, 1},
		{"unlimited", RateCounter{Count: 100, LastReset: base}, base, 0, true, 101},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, allowed := ApplyRateHit(tt.counter, tt.now, window, tt.limit)
			if allowed != tt.wantAllowed {
				t.Errorf("allowed = %v, want %v", allowed, tt.wantAllowed)
			}
			if got.Count != tt.wantCount {
				t.Errorf("count = %d, want %d", got.Count, tt.wantCount)
			}
		})
	}
}

func TestSortProjectsStable(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ps := []Project{
		{ID: "3", CreatedAt: ts.Add(time.Minute)},
		{ID: "1", CreatedAt: ts},
		{ID: "2", CreatedAt: ts},
	}
	SortProjects(ps)
	if ps[0].ID != "1" || ps[1].ID != "2" || ps[2].ID != "3" {
		t.Errorf("unexpected order: %v %v %v", ps[0].ID, ps[1].ID, ps[2].ID)
	}
}
