package gateway

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// minorUnitsToString renders a canonical minor-unit amount for providers
// that speak minor units natively (Stripe cents, Razorpay paise).
func minorUnitsToString(amount int64) string {
	return strconv.FormatInt(amount, 10)
}

// minorUnitsFromString parses a native minor-unit amount back to canonical.
func minorUnitsFromString(value string) (int64, error) {
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid minor-unit amount %q: %w", value, err)
	}
	return v, nil
}

// majorUnitsToString renders a canonical minor-unit amount in major units
// ("123.45") for providers that bill in major units (Cashfree rupees).
func majorUnitsToString(amount int64) string {
	return decimal.NewFromInt(amount).Div(decimal.NewFromInt(100)).StringFixed(2)
}

// majorUnitsFromString parses a major-unit amount back to canonical minor
// units. Exactly inverse of majorUnitsToString.
func majorUnitsFromString(value string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid major-unit amount %q: %w", value, err)
	}
	minor := d.Mul(decimal.NewFromInt(100))
	if !minor.Equal(minor.Round(0)) {
		return 0, fmt.Errorf("amount %q has sub-minor-unit precision", value)
	}
	return minor.IntPart(), nil
}
