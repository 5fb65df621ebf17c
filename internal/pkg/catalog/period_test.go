package catalog

import (
	"testing"
	"time"

	"github.com/campushq/campusbill/app/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCycleMonths(t *testing.T) {
	tests := []struct {
		cycle string
		want  int
	}{
		{cycle: models.BillingCycleMonthly, want: 1},
		{cycle: models.BillingCycleQuarterly, want: 3},
		{cycle: models.BillingCycleYearly, want: 12},
	}
	for _, tt := range tests {
		got, err := CycleMonths(tt.cycle)
		if err != nil || got != tt.want {
			t.Fatalf("CycleMonths(%q) = %d, %v, want %d", tt.cycle, got, err, tt.want)
		}
	}
	if _, err := CycleMonths("weekly"); err == nil {
		t.Fatalf("expected error for unknown cycle")
	}
}

func TestPeriodBoundsMonthly(t *testing.T) {
	start, end, err := PeriodBounds(day(2025, time.March, 15), models.BillingCycleMonthly)
	if err != nil {
		t.Fatalf("PeriodBounds: %v", err)
	}
	if !start.Equal(day(2025, time.March, 15)) {
		t.Fatalf("start = %v", start)
	}
	if end.Year() != 2025 || end.Month() != time.April || end.Day() != 14 {
		t.Fatalf("end = %v, want Apr 14", end)
	}
	if end.Hour() != 23 || end.Minute() != 59 {
		t.Fatalf("end must be end of day, got %v", end)
	}
}

func TestPeriodBoundsMonthEndClamp(t *testing.T) {
	// Jan 31 + 1 month clamps to Feb 28, so the period covers Jan 31 - Feb 27.
	_, end, err := PeriodBounds(day(2025, time.January, 31), models.BillingCycleMonthly)
	if err != nil {
		t.Fatalf("PeriodBounds: %v", err)
	}
	if end.Month() != time.February || end.Day() != 27 {
		t.Fatalf("end = %v, want Feb 27", end)
	}

	// Leap year: clamp lands on Feb 29 instead.
	_, end, err = PeriodBounds(day(2024, time.January, 31), models.BillingCycleMonthly)
	if err != nil {
		t.Fatalf("PeriodBounds: %v", err)
	}
	if end.Month() != time.February || end.Day() != 28 {
		t.Fatalf("end = %v, want Feb 28 (leap year)", end)
	}
}

func TestPeriodBoundsQuarterlyAndYearly(t *testing.T) {
	_, end, err := PeriodBounds(day(2025, time.November, 30), models.BillingCycleQuarterly)
	if err != nil {
		t.Fatalf("PeriodBounds: %v", err)
	}
	// Nov 30 + 3 months = Feb 28 (clamped), period ends Feb 27.
	if end.Year() != 2026 || end.Month() != time.February || end.Day() != 27 {
		t.Fatalf("end = %v, want 2026 Feb 27", end)
	}

	_, end, err = PeriodBounds(day(2024, time.February, 29), models.BillingCycleYearly)
	if err != nil {
		t.Fatalf("PeriodBounds: %v", err)
	}
	// Feb 29 2024 + 12 months clamps to Feb 28 2025, period ends Feb 27.
	if end.Year() != 2025 || end.Month() != time.February || end.Day() != 27 {
		t.Fatalf("end = %v, want 2025 Feb 27", end)
	}
}

func TestPeriodBoundsFloorsStartOfDay(t *testing.T) {
	noisy := time.Date(2025, time.June, 10, 17, 42, 13, 500, time.UTC)
	start, _, err := PeriodBounds(noisy, models.BillingCycleMonthly)
	if err != nil {
		t.Fatalf("PeriodBounds: %v", err)
	}
	if !start.Equal(day(2025, time.June, 10)) {
		t.Fatalf("start = %v, want floored to start of day", start)
	}
}

func TestPeriodBoundsUnknownCycle(t *testing.T) {
	if _, _, err := PeriodBounds(day(2025, time.June, 1), "fortnightly"); err == nil {
		t.Fatalf("expected error for unknown cycle")
	}
}

func TestNextPeriodStart(t *testing.T) {
	end := EndOfDay(day(2025, time.April, 14))
	next := NextPeriodStart(end)
	if !next.Equal(day(2025, time.April, 15)) {
		t.Fatalf("NextPeriodStart = %v, want Apr 15 00:00", next)
	}
}

func TestConsecutivePeriodsDoNotOverlap(t *testing.T) {
	start := day(2025, time.January, 31)
	for i := 0; i < 12; i++ {
		s, e, err := PeriodBounds(start, models.BillingCycleMonthly)
		if err != nil {
			t.Fatalf("PeriodBounds: %v", err)
		}
		if !e.After(s) {
			t.Fatalf("period %d: end %v not after start %v", i, e, s)
		}
		next := NextPeriodStart(e)
		if !next.After(e) {
			t.Fatalf("period %d: next start %v not after end %v", i, next, e)
		}
		start = next
	}
}
