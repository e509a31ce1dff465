package store

import (
	"testing"
	"time"
)

func TestMonthWindowAtMonthEnd(t *testing.T) {
	// March 31: stepping months from the 31st would normalize through
	// shorter months and produce duplicate labels.
	now := time.Date(2026, time.March, 31, 23, 0, 0, 0, time.UTC)

	points := MonthWindow(now, 12)

	if len(points) != 12 {
		t.Fatalf("expected 12 points, got %d", len(points))
	}
	if points[0].Year != 2025 || points[0].Month != 4 {
		t.Fatalf("expected window to start at 2025-04, got %d-%02d", points[0].Year, points[0].Month)
	}
	if points[11].Year != 2026 || points[11].Month != 3 {
		t.Fatalf("expected window to end at 2026-03, got %d-%02d", points[11].Year, points[11].Month)
	}

	seen := make(map[[2]int]bool, len(points))
	for i, p := range points {
		key := [2]int{p.Year, p.Month}
		if seen[key] {
			t.Fatalf("duplicate month %d-%02d at index %d: %+v", p.Year, p.Month, i, points)
		}
		seen[key] = true
		if i == 0 {
			continue
		}
		prev := points[i-1]
		wantYear, wantMonth := prev.Year, prev.Month+1
		if wantMonth > 12 {
			wantMonth = 1
			wantYear++
		}
		if p.Year != wantYear || p.Month != wantMonth {
			t.Fatalf("months not consecutive at index %d: %d-%02d after %d-%02d", i, p.Year, p.Month, prev.Year, prev.Month)
		}
	}
}

func TestMonthWindowDecemberRollover(t *testing.T) {
	now := time.Date(2025, time.December, 31, 12, 0, 0, 0, time.UTC)

	points := MonthWindow(now, 6)

	if len(points) != 6 {
		t.Fatalf("expected 6 points, got %d", len(points))
	}
	if points[0].Year != 2025 || points[0].Month != 7 {
		t.Fatalf("expected window to start at 2025-07, got %d-%02d", points[0].Year, points[0].Month)
	}
	if points[5].Year != 2025 || points[5].Month != 12 {
		t.Fatalf("expected window to end at 2025-12, got %d-%02d", points[5].Year, points[5].Month)
	}
}

func TestMonthWindowDefaultsToTwelve(t *testing.T) {
	now := time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC)

	if got := len(MonthWindow(now, 0)); got != 12 {
		t.Fatalf("expected 12 points by default, got %d", got)
	}
}
