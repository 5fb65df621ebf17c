package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProrationResult breaks down a mid-period plan change. Amount is the net
// charge (positive) or credit (negative) in minor units. UnusedCredit and
// NewCharge are rounded independently for display; Amount is rounded exactly
// once, on the unrounded difference, so the pinned rounding order holds.
type ProrationResult struct {
	RemainingDays int   `json:"remaining_days"`
	TotalDays     int   `json:"total_days"`
	UnusedCredit  int64 `json:"unused_credit"`
	NewCharge     int64 `json:"new_charge"`
	Amount        int64 `json:"amount"`
}

// CalculateProration computes the net amount owed when switching from
// oldPrice to newPrice at changeDate within [periodStart, periodEnd).
// Day counts use ceiling division so a partial day counts as a full day.
// Deterministic and side-effect free.
func CalculateProration(oldPrice, newPrice int64, periodStart, periodEnd, changeDate time.Time) ProrationResult {
	remainingDays := ceilDays(periodEnd.Sub(changeDate))
	totalDays := ceilDays(periodEnd.Sub(periodStart))
	if totalDays <= 0 || remainingDays <= 0 {
		return ProrationResult{RemainingDays: maxInt(remainingDays, 0), TotalDays: maxInt(totalDays, 0)}
	}
	if remainingDays > totalDays {
		remainingDays = totalDays
	}

	remaining := decimal.NewFromInt(int64(remainingDays))
	total := decimal.NewFromInt(int64(totalDays))

	unused := decimal.NewFromInt(oldPrice).Mul(remaining).Div(total)
	charge := decimal.NewFromInt(newPrice).Mul(remaining).Div(total)

	return ProrationResult{
		RemainingDays: remainingDays,
		TotalDays:     totalDays,
		UnusedCredit:  unused.Round(0).IntPart(),
		NewCharge:     charge.Round(0).IntPart(),
		Amount:        charge.Sub(unused).Round(0).IntPart(),
	}
}

// ceilDays converts a duration to whole days, rounding partial days up.
func ceilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	days := d / (24 * time.Hour)
	if d%(24*time.Hour) != 0 {
		days++
	}
	return int(days)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
