package catalog

import (
	"fmt"
	"time"

	"github.com/campushq/campusbill/app/models"
)

// CycleMonths returns the length of a billing cycle in calendar months.
func CycleMonths(cycle string) (int, error) {
	switch cycle {
	case models.BillingCycleMonthly:
		return 1, nil
	case models.BillingCycleQuarterly:
		return 3, nil
	case models.BillingCycleYearly:
		return 12, nil
	default:
		return 0, fmt.Errorf("unknown billing cycle %q", cycle)
	}
}

// PeriodBounds computes [periodStart, periodEnd] for a billing period
// beginning at start. Uses calendar month/quarter/year arithmetic, never
// fixed 30-day blocks. periodStart is floored to start of day, periodEnd is
// the end of the period's last day. Month ends clamp: a monthly period
// starting Jan 31 ends Feb 28 (or 29).
func PeriodBounds(start time.Time, cycle string) (time.Time, time.Time, error) {
	months, err := CycleMonths(cycle)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	s := StartOfDay(start)
	next := addMonthsClamped(s, months)
	end := EndOfDay(next.AddDate(0, 0, -1))
	return s, end, nil
}

// NextPeriodStart returns the first instant of the period following one that
// ends at periodEnd.
func NextPeriodStart(periodEnd time.Time) time.Time {
	return StartOfDay(periodEnd).AddDate(0, 0, 1)
}

// StartOfDay floors t to 00:00:00 in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last nanosecond of t's day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// addMonthsClamped adds calendar months, clamping to the last day of the
// target month instead of letting the date normalize past it (Go's AddDate
// would turn Jan 31 + 1 month into Mar 2/3).
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()
	target := time.Date(y, m+time.Month(months), 1, h, min, sec, t.Nanosecond(), t.Location())
	if last := daysInMonth(target.Year(), target.Month()); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, h, min, sec, t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
