package gateway

import "testing"

func TestMinorUnitRoundTrip(t *testing.T) {
	for _, amount := range []int64{0, 1, 99, 100, 12345, 999999999999} {
		formatted := minorUnitsToString(amount)
		parsed, err := minorUnitsFromString(formatted)
		if err != nil {
			t.Fatalf("parse %q: %v", formatted, err)
		}
		if parsed != amount {
			t.Fatalf("round trip %d -> %q -> %d", amount, formatted, parsed)
		}
	}
}

func TestMajorUnitFormat(t *testing.T) {
	tests := []struct {
		amount int64
		want   string
	}{
		{amount: 0, want: "0.00"},
		{amount: 1, want: "0.01"},
		{amount: 100, want: "1.00"},
		{amount: 123456, want: "1234.56"},
		{amount: 999999999999, want: "9999999999.99"},
	}
	for _, tt := range tests {
		if got := majorUnitsToString(tt.amount); got != tt.want {
			t.Fatalf("majorUnitsToString(%d) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}

func TestMajorUnitRoundTrip(t *testing.T) {
	for _, amount := range []int64{0, 1, 99, 100, 12345, 100000001, 999999999999} {
		formatted := majorUnitsToString(amount)
		parsed, err := majorUnitsFromString(formatted)
		if err != nil {
			t.Fatalf("parse %q: %v", formatted, err)
		}
		if parsed != amount {
			t.Fatalf("round trip %d -> %q -> %d", amount, formatted, parsed)
		}
	}
}

func TestMajorUnitRejectsSubMinorPrecision(t *testing.T) {
	for _, value := range []string{"1.005", "0.001", "12.345"} {
		if _, err := majorUnitsFromString(value); err == nil {
			t.Fatalf("expected error for %q", value)
		}
	}
}

func TestMajorUnitRejectsGarbage(t *testing.T) {
	for _, value := range []string{"", "abc", "1,50"} {
		if _, err := majorUnitsFromString(value); err == nil {
			t.Fatalf("expected error for %q", value)
		}
	}
	if _, err := minorUnitsFromString("12.34"); err == nil {
		t.Fatalf("minor units must reject decimals")
	}
}

// The adapter-level contract: FormatAmount and ParseAmount must be exactly
// inverse for every adapter regardless of its native representation.
func TestAdapterAmountContracts(t *testing.T) {
	adapters := []Adapter{
		NewStripeAdapter(),
		NewRazorpayAdapter(),
		NewCashfreeAdapter(),
	}
	amounts := []int64{0, 1, 99, 100, 4999, 123456, 999999999999}

	for _, a := range adapters {
		for _, amount := range amounts {
			formatted := a.FormatAmount(amount, "INR")
			parsed, err := a.ParseAmount(formatted, "INR")
			if err != nil {
				t.Fatalf("%s: parse %q: %v", a.Name(), formatted, err)
			}
			if parsed != amount {
				t.Fatalf("%s: round trip %d -> %q -> %d", a.Name(), amount, formatted, parsed)
			}
		}
	}
}

func TestCashfreeSpeaksMajorUnits(t *testing.T) {
	a := NewCashfreeAdapter()
	if got := a.FormatAmount(123456, "INR"); got != "1234.56" {
		t.Fatalf("FormatAmount = %q, want 1234.56", got)
	}
}

func TestRazorpaySpeaksPaise(t *testing.T) {
	a := NewRazorpayAdapter()
	if got := a.FormatAmount(123456, "INR"); got != "123456" {
		t.Fatalf("FormatAmount = %q, want 123456", got)
	}
}
