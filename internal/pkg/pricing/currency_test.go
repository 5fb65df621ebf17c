package pricing

import "testing"

func TestConvertCurrency(t *testing.T) {
	// 100.00 USD at 83.20 INR/USD = 8320.00 INR, fee 2.5% = 208.00 INR.
	got, err := ConvertCurrency(10000, "USD", "INR", "83.20")
	if err != nil {
		t.Fatalf("ConvertCurrency: %v", err)
	}
	if got.Amount != 832000 {
		t.Fatalf("Amount = %d, want 832000", got.Amount)
	}
	if got.ConversionFee != 20800 {
		t.Fatalf("ConversionFee = %d, want 20800", got.ConversionFee)
	}
	if got.OriginalAmount != 10000 || got.OriginalCurrency != "USD" || got.Currency != "INR" {
		t.Fatalf("unexpected envelope: %+v", got)
	}
}

func TestConvertCurrencyRounding(t *testing.T) {
	// 33 cents at rate 0.505 = 16.665 -> 17 minor units.
	got, err := ConvertCurrency(33, "USD", "EUR", "0.505")
	if err != nil {
		t.Fatalf("ConvertCurrency: %v", err)
	}
	if got.Amount != 17 {
		t.Fatalf("Amount = %d, want 17", got.Amount)
	}
}

func TestConvertCurrencyInvalidRate(t *testing.T) {
	for _, rate := range []string{"", "abc", "0", "-1.5"} {
		if _, err := ConvertCurrency(100, "USD", "EUR", rate); err == nil {
			t.Fatalf("expected error for rate %q", rate)
		}
	}
}
