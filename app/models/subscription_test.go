package models

import "testing"

func TestSyncActiveKey(t *testing.T) {
	sub := &Subscription{TenantID: 7, SchoolID: 3, Status: SubscriptionStatusActive}

	sub.SyncActiveKey()
	if sub.ActiveKey == nil || *sub.ActiveKey != "7:3" {
		t.Fatalf("ActiveKey = %v, want 7:3", sub.ActiveKey)
	}

	// Every non-terminal status keeps the key.
	for _, status := range []string{
		SubscriptionStatusTrial,
		SubscriptionStatusActive,
		SubscriptionStatusPastDue,
		SubscriptionStatusUnpaid,
		SubscriptionStatusSuspended,
		SubscriptionStatusIncomplete,
	} {
		sub.Status = status
		sub.SyncActiveKey()
		if sub.ActiveKey == nil {
			t.Fatalf("status %q must keep the active key", status)
		}
	}

	// Terminal statuses clear it so the unique index frees the slot.
	for _, status := range []string{
		SubscriptionStatusCanceled,
		SubscriptionStatusIncompleteExpired,
	} {
		sub.Status = status
		sub.SyncActiveKey()
		if sub.ActiveKey != nil {
			t.Fatalf("status %q must clear the active key", status)
		}
	}
}

func TestActiveSubscriptionKey(t *testing.T) {
	if got := ActiveSubscriptionKey(12, 34); got != "12:34" {
		t.Fatalf("ActiveSubscriptionKey = %q", got)
	}
}

func TestSubscriptionIsTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{status: SubscriptionStatusTrial, want: false},
		{status: SubscriptionStatusActive, want: false},
		{status: SubscriptionStatusPastDue, want: false},
		{status: SubscriptionStatusUnpaid, want: false},
		{status: SubscriptionStatusSuspended, want: false},
		{status: SubscriptionStatusIncomplete, want: false},
		{status: SubscriptionStatusCanceled, want: true},
		{status: SubscriptionStatusIncompleteExpired, want: true},
	}
	for _, tt := range tests {
		s := &Subscription{Status: tt.status}
		if got := s.IsTerminal(); got != tt.want {
			t.Fatalf("IsTerminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestSubscriptionIsBillable(t *testing.T) {
	billable := map[string]bool{
		SubscriptionStatusTrial:  true,
		SubscriptionStatusActive: true,
	}
	for _, status := range []string{
		SubscriptionStatusTrial, SubscriptionStatusActive, SubscriptionStatusPastDue,
		SubscriptionStatusUnpaid, SubscriptionStatusSuspended, SubscriptionStatusCanceled,
	} {
		s := &Subscription{Status: status}
		if got := s.IsBillable(); got != billable[status] {
			t.Fatalf("IsBillable(%q) = %v, want %v", status, got, billable[status])
		}
	}
}

func TestPlanLimit(t *testing.T) {
	p := &Plan{Limits: map[string]int64{LimitSchools: 3}}
	if got := p.Limit(LimitSchools); got != 3 {
		t.Fatalf("Limit(schools) = %d", got)
	}
	if got := p.Limit(LimitUsers); got != UnlimitedLimit {
		t.Fatalf("missing key = %d, want unlimited sentinel", got)
	}

	empty := &Plan{}
	if got := empty.Limit(LimitSchools); got != UnlimitedLimit {
		t.Fatalf("nil limits = %d, want unlimited sentinel", got)
	}
}

func TestGatewayConfigSupports(t *testing.T) {
	cfg := &GatewayConfig{
		SupportedCurrencies: []string{"INR"},
		SupportedCountries:  []string{"IN"},
	}
	if !cfg.SupportsCurrency("inr") || !cfg.SupportsCountry("in") {
		t.Fatalf("matching must be case insensitive")
	}
	if cfg.SupportsCurrency("USD") || cfg.SupportsCountry("US") {
		t.Fatalf("unlisted values must not match")
	}

	open := &GatewayConfig{}
	if !open.SupportsCurrency("JPY") || !open.SupportsCountry("JP") {
		t.Fatalf("empty lists mean no restriction")
	}
}
