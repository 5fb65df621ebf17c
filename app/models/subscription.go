package models

import (
	"fmt"
	"time"
)

const (
	SubscriptionStatusTrial             = "trial"
	SubscriptionStatusActive            = "active"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusUnpaid            = "unpaid"
	SubscriptionStatusSuspended         = "suspended"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
)

const (
	BillingCycleMonthly   = "monthly"
	BillingCycleQuarterly = "quarterly"
	BillingCycleYearly    = "yearly"
)

const CancelReasonNonPayment = "non_payment"

// Subscription ties a tenant's school to a plan and carries the full billing
// lifecycle state. ActiveKey backs the "one non-terminal subscription per
// (tenant, school)" invariant: it holds "tenantID:schoolID" while the
// subscription is non-terminal and NULL once it reaches a terminal state, so
// the unique index only bites for live rows. The database, not the
// application-level existence check, is the enforcement point.
type Subscription struct {
	ID                    uint              `gorm:"primaryKey" json:"id"`
	TenantID              uint              `gorm:"not null;index:idx_subscriptions_tenant_school,priority:1" json:"tenant_id"`
	SchoolID              uint              `gorm:"not null;index:idx_subscriptions_tenant_school,priority:2" json:"school_id"`
	PlanID                string            `gorm:"type:varchar(64);not null;index" json:"plan_id"`
	Status                string            `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	BillingCycle          string            `gorm:"type:varchar(16);not null;default:'monthly'" json:"billing_cycle"`
	CurrentPeriodStart    time.Time         `gorm:"type:timestamp;not null" json:"current_period_start"`
	CurrentPeriodEnd      time.Time         `gorm:"type:timestamp;not null;index" json:"current_period_end"`
	TrialStart            *time.Time        `gorm:"type:timestamp;default:null" json:"trial_start,omitempty"`
	TrialEnd              *time.Time        `gorm:"type:timestamp;default:null;index" json:"trial_end,omitempty"`
	CancelAtPeriodEnd     bool              `gorm:"not null;default:false" json:"cancel_at_period_end"`
	CanceledAt            *time.Time        `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	CancelReason          string            `gorm:"type:varchar(64)" json:"cancel_reason,omitempty"`
	Gateway               string            `gorm:"type:varchar(20);index" json:"gateway,omitempty"`
	GatewayCustomerID     string            `gorm:"type:varchar(191)" json:"gateway_customer_id,omitempty"`
	GatewaySubscriptionID string            `gorm:"type:varchar(191);index" json:"gateway_subscription_id,omitempty"`
	ActiveKey             *string           `gorm:"type:varchar(64);uniqueIndex:ux_subscriptions_active_key" json:"-"`
	Metadata              map[string]string `gorm:"serializer:json;type:longtext" json:"metadata,omitempty"`
	CreatedAt             time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the subscription can never become active again.
// A terminal row is never reused; re-subscribing creates a fresh row.
func (s *Subscription) IsTerminal() bool {
	switch s.Status {
	case SubscriptionStatusCanceled, SubscriptionStatusIncompleteExpired:
		return true
	default:
		return false
	}
}

// IsBillable reports whether the subscription participates in renewals.
func (s *Subscription) IsBillable() bool {
	switch s.Status {
	case SubscriptionStatusTrial, SubscriptionStatusActive:
		return true
	default:
		return false
	}
}

// SyncActiveKey recomputes ActiveKey from the current status. Must be called
// before every save that may change Status.
func (s *Subscription) SyncActiveKey() {
	if s.IsTerminal() {
		s.ActiveKey = nil
		return
	}
	key := ActiveSubscriptionKey(s.TenantID, s.SchoolID)
	s.ActiveKey = &key
}

// ActiveSubscriptionKey builds the uniqueness key guarding the one
// non-terminal subscription per (tenant, school) invariant.
func ActiveSubscriptionKey(tenantID, schoolID uint) string {
	return fmt.Sprintf("%d:%d", tenantID, schoolID)
}
