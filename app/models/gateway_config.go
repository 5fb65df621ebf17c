package models

import (
	"strings"
	"time"
)

const (
	GatewayStripe   = "stripe"
	GatewayRazorpay = "razorpay"
	GatewayCashfree = "cashfree"
)

// GatewayConfig is the per-deployment configuration row for one payment
// gateway. Credentials never live here; they are resolved from the
// environment at initialization time. Selection among enabled gateways is
// priority ordered (lower value wins).
type GatewayConfig struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	Gateway             string    `gorm:"type:varchar(20);not null;uniqueIndex" json:"gateway"`
	Enabled             bool      `gorm:"not null;default:false;index" json:"enabled"`
	Priority            int       `gorm:"not null;default:100" json:"priority"`
	SupportedCurrencies []string  `gorm:"serializer:json;type:longtext" json:"supported_currencies"`
	SupportedCountries  []string  `gorm:"serializer:json;type:longtext" json:"supported_countries"`
	PaymentMethods      []string  `gorm:"serializer:json;type:longtext" json:"payment_methods"`
	IsFallback          bool      `gorm:"not null;default:false" json:"is_fallback"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SupportsCurrency reports whether the gateway accepts a currency. An empty
// list means the gateway takes any currency.
func (g *GatewayConfig) SupportsCurrency(currency string) bool {
	return containsFold(g.SupportedCurrencies, currency)
}

// SupportsCountry reports whether the gateway operates in a country.
func (g *GatewayConfig) SupportsCountry(country string) bool {
	return containsFold(g.SupportedCountries, country)
}

func containsFold(list []string, want string) bool {
	if len(list) == 0 {
		return true
	}
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
