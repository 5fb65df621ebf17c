package models

import "time"

const (
	PlanIntervalMonth = "month"
	PlanIntervalYear  = "year"
)

// UnlimitedLimit is the sentinel for "no limit" inside a plan limit map.
const UnlimitedLimit int64 = -1

// Limit map keys shared between plans and usage metrics.
const (
	LimitSchools      = "schools"
	LimitUsers        = "users"
	LimitStudents     = "students"
	LimitAPICalls     = "api_calls"
	LimitStorageBytes = "storage_bytes"
)

// Plan is a sellable subscription plan. Price is stored in integer
// minor currency units (cents, paise, ...). Plans referenced by an active
// subscription are immutable except for administrative deactivation.
type Plan struct {
	ID               string           `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name             string           `gorm:"type:varchar(150);not null" json:"name"`
	Description      string           `gorm:"type:text" json:"description,omitempty"`
	Price            int64            `gorm:"not null" json:"price"`
	Currency         string           `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Interval         string           `gorm:"type:varchar(16);not null;default:'month'" json:"interval"`
	Features         []string         `gorm:"serializer:json;type:longtext" json:"features"`
	Limits           map[string]int64 `gorm:"serializer:json;type:longtext" json:"limits"`
	TrialDays        int              `gorm:"not null;default:0" json:"trial_days"`
	IsActive         bool             `gorm:"not null;default:true;index" json:"is_active"`
	GatewayPriceRefs map[string]string `gorm:"serializer:json;type:longtext" json:"gateway_price_refs,omitempty"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// Limit returns the configured limit for a metric key. Missing keys are
// treated as unlimited so new metrics never lock out existing plans.
func (p *Plan) Limit(key string) int64 {
	if p.Limits == nil {
		return UnlimitedLimit
	}
	v, ok := p.Limits[key]
	if !ok {
		return UnlimitedLimit
	}
	return v
}

// GatewayPriceRef returns the provider-side price reference for a gateway.
func (p *Plan) GatewayPriceRef(gateway string) string {
	if p.GatewayPriceRefs == nil {
		return ""
	}
	return p.GatewayPriceRefs[gateway]
}

// HasFeature reports whether the plan includes a named feature.
func (p *Plan) HasFeature(feature string) bool {
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}
