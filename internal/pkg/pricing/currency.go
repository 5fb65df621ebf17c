package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ConversionResult describes a cross-currency conversion of a minor-unit
// amount. ConversionFee is charged on top of the converted amount.
type ConversionResult struct {
	OriginalAmount   int64  `json:"original_amount"`
	OriginalCurrency string `json:"original_currency"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	ExchangeRate     string `json:"exchange_rate"`
	ConversionFee    int64  `json:"conversion_fee"`
}

// conversionFeePercent is the platform fee applied to converted charges.
var conversionFeePercent = decimal.NewFromFloat(2.5)

// ConvertCurrency converts amount (minor units) using the given exchange
// rate. Rounding happens once on the converted amount and once on the fee.
func ConvertCurrency(amount int64, fromCurrency, toCurrency, rate string) (ConversionResult, error) {
	r, err := decimal.NewFromString(rate)
	if err != nil {
		return ConversionResult{}, fmt.Errorf("invalid exchange rate %q: %w", rate, err)
	}
	if r.Sign() <= 0 {
		return ConversionResult{}, fmt.Errorf("exchange rate must be positive, got %s", rate)
	}

	converted := decimal.NewFromInt(amount).Mul(r)
	fee := converted.Mul(conversionFeePercent).Div(decimal.NewFromInt(100))

	return ConversionResult{
		OriginalAmount:   amount,
		OriginalCurrency: fromCurrency,
		Amount:           converted.Round(0).IntPart(),
		Currency:         toCurrency,
		ExchangeRate:     r.String(),
		ConversionFee:    fee.Round(0).IntPart(),
	}, nil
}
