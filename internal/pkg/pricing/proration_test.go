package pricing

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalculateProrationMidMonthUpgrade(t *testing.T) {
	// Monthly period Jan 1 - Feb 1, upgrade from 80.00 to 200.00 on Jan 16.
	// 16 of 31 days remain; the net charge rounds once on the difference.
	got := CalculateProration(8000, 20000, date(2025, time.January, 1), date(2025, time.February, 1), date(2025, time.January, 16))

	if got.RemainingDays != 16 {
		t.Fatalf("RemainingDays = %d, want 16", got.RemainingDays)
	}
	if got.TotalDays != 31 {
		t.Fatalf("TotalDays = %d, want 31", got.TotalDays)
	}
	if got.UnusedCredit != 4129 {
		t.Fatalf("UnusedCredit = %d, want 4129", got.UnusedCredit)
	}
	if got.NewCharge != 10323 {
		t.Fatalf("NewCharge = %d, want 10323", got.NewCharge)
	}
	if got.Amount != 6194 {
		t.Fatalf("Amount = %d, want 6194", got.Amount)
	}
}

func TestCalculateProrationRoundsOnceOnDifference(t *testing.T) {
	got := CalculateProration(8000, 20000, date(2025, time.January, 1), date(2025, time.February, 1), date(2025, time.January, 16))

	// Rounding the two display values independently and subtracting would
	// give 10323 - 4129 = 6194 here, but that equality is coincidental. The
	// invariant under test is that Amount comes from the unrounded difference.
	if got.Amount != 6194 {
		t.Fatalf("Amount = %d, want 6194", got.Amount)
	}

	// A case where per-leg rounding and difference rounding disagree:
	// old 1000, new 1001 over 3 remaining of 7 days.
	// unused = 428.57 -> 429, charge = 429.0 -> 429, per-leg diff = 0.
	// True diff = 0.4285... -> rounds to 0 as well, so pick one that differs:
	// old 100, new 103 over 1 of 6 days: unused 16.67->17, charge 17.17->17,
	// per-leg diff 0; true diff 0.5 -> 1.
	r := CalculateProration(100, 103, date(2025, time.March, 1), date(2025, time.March, 7), date(2025, time.March, 6))
	if r.Amount != 1 {
		t.Fatalf("Amount = %d, want 1 (rounded once on the difference)", r.Amount)
	}
}

func TestCalculateProrationDowngradeIsCredit(t *testing.T) {
	got := CalculateProration(20000, 8000, date(2025, time.January, 1), date(2025, time.February, 1), date(2025, time.January, 16))
	if got.Amount != -6194 {
		t.Fatalf("Amount = %d, want -6194", got.Amount)
	}
}

func TestCalculateProrationPartialDayCountsFull(t *testing.T) {
	// Change at noon on Jan 15: 16.5 days remain, ceiling to 17.
	change := time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC)
	got := CalculateProration(8000, 20000, date(2025, time.January, 1), date(2025, time.February, 1), change)
	if got.RemainingDays != 17 {
		t.Fatalf("RemainingDays = %d, want 17", got.RemainingDays)
	}
}

func TestCalculateProrationEdges(t *testing.T) {
	start := date(2025, time.January, 1)
	end := date(2025, time.February, 1)

	// Change exactly at period end: nothing remains, nothing owed.
	got := CalculateProration(8000, 20000, start, end, end)
	if got.Amount != 0 || got.UnusedCredit != 0 || got.NewCharge != 0 {
		t.Fatalf("expected zero proration at period end, got %+v", got)
	}

	// Change after period end.
	got = CalculateProration(8000, 20000, start, end, end.AddDate(0, 0, 5))
	if got.Amount != 0 || got.RemainingDays != 0 {
		t.Fatalf("expected zero proration after period end, got %+v", got)
	}

	// Change before period start clamps remaining to total: full swap.
	got = CalculateProration(8000, 20000, start, end, start.AddDate(0, 0, -2))
	if got.RemainingDays != got.TotalDays {
		t.Fatalf("RemainingDays = %d, want clamp to TotalDays %d", got.RemainingDays, got.TotalDays)
	}
	if got.Amount != 12000 {
		t.Fatalf("Amount = %d, want 12000", got.Amount)
	}

	// Degenerate empty period.
	got = CalculateProration(8000, 20000, start, start, start)
	if got.Amount != 0 || got.TotalDays != 0 {
		t.Fatalf("expected zero proration for empty period, got %+v", got)
	}
}

func TestCalculateProrationDeterministic(t *testing.T) {
	start, end, change := date(2025, time.May, 1), date(2025, time.June, 1), date(2025, time.May, 20)
	first := CalculateProration(4900, 14900, start, end, change)
	for i := 0; i < 5; i++ {
		if got := CalculateProration(4900, 14900, start, end, change); got != first {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}
