package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"
)

func razorpayForTest(t *testing.T) *RazorpayAdapter {
	t.Helper()
	a := NewRazorpayAdapter()
	err := a.Initialize(Credentials{
		"key_id":         "rzp_test",
		"key_secret":     "secret",
		"webhook_secret": "whsec_rzp",
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return a
}

func cashfreeForTest(t *testing.T) *CashfreeAdapter {
	t.Helper()
	a := NewCashfreeAdapter()
	err := a.Initialize(Credentials{
		"app_id":         "cf_app",
		"secret_key":     "cf_secret",
		"webhook_secret": "whsec_cf",
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return a
}

func razorpaySign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func cashfreeSign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestRazorpayVerifyWebhookSignature(t *testing.T) {
	a := razorpayForTest(t)
	payload := []byte(`{"event":"payment.captured"}`)

	valid := map[string]string{"X-Razorpay-Signature": razorpaySign("whsec_rzp", payload)}
	if !a.VerifyWebhookSignature(payload, valid) {
		t.Fatalf("expected valid signature to verify")
	}

	invalid := map[string]string{"X-Razorpay-Signature": razorpaySign("wrong_secret", payload)}
	if a.VerifyWebhookSignature(payload, invalid) {
		t.Fatalf("signature with wrong secret must not verify")
	}

	if a.VerifyWebhookSignature(payload, map[string]string{}) {
		t.Fatalf("missing signature header must not verify")
	}

	tampered := []byte(`{"event":"payment.captured","amount":1}`)
	if a.VerifyWebhookSignature(tampered, valid) {
		t.Fatalf("tampered payload must not verify")
	}
}

func TestRazorpayParseWebhookEvent(t *testing.T) {
	a := razorpayForTest(t)
	payload := []byte(`{
		"event": "payment.captured",
		"payload": {
			"payment": {
				"entity": {"id": "pay_123", "amount": 49900, "currency": "INR", "status": "captured"}
			},
			"subscription": {
				"entity": {"id": "sub_456", "customer_id": "cust_789", "status": "active"}
			}
		}
	}`)
	headers := map[string]string{
		"X-Razorpay-Signature": razorpaySign("whsec_rzp", payload),
		"X-Razorpay-Event-Id":  "evt_001",
	}

	event, err := a.ParseWebhookEvent(payload, headers)
	if err != nil {
		t.Fatalf("ParseWebhookEvent: %v", err)
	}
	if event.Type != EventPaymentSucceeded {
		t.Fatalf("Type = %q, want %q", event.Type, EventPaymentSucceeded)
	}
	if event.ID != "evt_001" || event.Gateway != "razorpay" {
		t.Fatalf("envelope = %+v", event)
	}
	if event.GatewayPaymentID != "pay_123" || event.Amount != 49900 || event.Currency != "INR" {
		t.Fatalf("payment fields = %+v", event)
	}
	if event.GatewaySubscriptionID != "sub_456" || event.GatewayCustomerID != "cust_789" {
		t.Fatalf("subscription fields = %+v", event)
	}
}

func TestRazorpayParseWebhookEventTaxonomy(t *testing.T) {
	a := razorpayForTest(t)
	tests := []struct {
		provider string
		want     string
	}{
		{provider: "payment.captured", want: EventPaymentSucceeded},
		{provider: "payment.failed", want: EventPaymentFailed},
		{provider: "subscription.activated", want: EventSubscriptionUpdated},
		{provider: "subscription.halted", want: EventSubscriptionUpdated},
		{provider: "subscription.cancelled", want: EventSubscriptionDeleted},
		{provider: "subscription.completed", want: EventSubscriptionDeleted},
		{provider: "refund.created", want: EventIgnored},
		{provider: "something.new", want: EventIgnored},
	}
	for _, tt := range tests {
		payload := []byte(`{"event":"` + tt.provider + `"}`)
		headers := map[string]string{"X-Razorpay-Signature": razorpaySign("whsec_rzp", payload)}
		event, err := a.ParseWebhookEvent(payload, headers)
		if err != nil {
			t.Fatalf("%s: %v", tt.provider, err)
		}
		if event.Type != tt.want {
			t.Fatalf("%s mapped to %q, want %q", tt.provider, event.Type, tt.want)
		}
	}
}

func TestRazorpayParseWebhookEventRejectsBadSignature(t *testing.T) {
	a := razorpayForTest(t)
	payload := []byte(`{"event":"payment.captured"}`)
	if _, err := a.ParseWebhookEvent(payload, map[string]string{"X-Razorpay-Signature": "nope"}); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestCashfreeVerifyWebhookSignature(t *testing.T) {
	a := cashfreeForTest(t)
	payload := []byte(`{"type":"PAYMENT_SUCCESS_WEBHOOK"}`)
	ts := "1717500000"

	valid := map[string]string{
		"x-webhook-signature": cashfreeSign("whsec_cf", ts, payload),
		"x-webhook-timestamp": ts,
	}
	if !a.VerifyWebhookSignature(payload, valid) {
		t.Fatalf("expected valid signature to verify")
	}

	// Signature covers the timestamp too, so replaying with another one fails.
	replayed := map[string]string{
		"x-webhook-signature": valid["x-webhook-signature"],
		"x-webhook-timestamp": "1717599999",
	}
	if a.VerifyWebhookSignature(payload, replayed) {
		t.Fatalf("signature must bind the timestamp")
	}

	if a.VerifyWebhookSignature(payload, map[string]string{"x-webhook-timestamp": ts}) {
		t.Fatalf("missing signature header must not verify")
	}
}

func TestCashfreeWebhookSecretDefaultsToAPISecret(t *testing.T) {
	a := NewCashfreeAdapter()
	if err := a.Initialize(Credentials{"app_id": "cf_app", "secret_key": "cf_secret"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	payload := []byte(`{"type":"PAYMENT_SUCCESS_WEBHOOK"}`)
	ts := "1717500000"
	headers := map[string]string{
		"x-webhook-signature": cashfreeSign("cf_secret", ts, payload),
		"x-webhook-timestamp": ts,
	}
	if !a.VerifyWebhookSignature(payload, headers) {
		t.Fatalf("expected the API secret to be used when no webhook secret is set")
	}
}

func TestCashfreeParseWebhookEvent(t *testing.T) {
	a := cashfreeForTest(t)
	payload := []byte(`{
		"type": "PAYMENT_SUCCESS_WEBHOOK",
		"data": {
			"order": {"order_id": "cb-renewal-7", "order_amount": 499.00, "order_currency": "INR"},
			"payment": {"payment_status": "SUCCESS"},
			"customer_details": {"customer_id": "cf-tenant-3"}
		}
	}`)
	ts := "1717500000"
	headers := map[string]string{
		"x-webhook-signature": cashfreeSign("whsec_cf", ts, payload),
		"x-webhook-timestamp": ts,
	}

	event, err := a.ParseWebhookEvent(payload, headers)
	if err != nil {
		t.Fatalf("ParseWebhookEvent: %v", err)
	}
	if event.Type != EventPaymentSucceeded {
		t.Fatalf("Type = %q", event.Type)
	}
	if event.GatewayPaymentID != "cb-renewal-7" {
		t.Fatalf("GatewayPaymentID = %q", event.GatewayPaymentID)
	}
	// 499.00 rupees is 49900 canonical minor units.
	if event.Amount != 49900 || event.Currency != "INR" {
		t.Fatalf("amount fields = %+v", event)
	}
	if event.GatewayCustomerID != "cf-tenant-3" || event.Status != "SUCCESS" {
		t.Fatalf("detail fields = %+v", event)
	}
}

func TestCashfreeParseWebhookEventTaxonomy(t *testing.T) {
	a := cashfreeForTest(t)
	tests := []struct {
		provider string
		want     string
	}{
		{provider: "PAYMENT_SUCCESS_WEBHOOK", want: EventPaymentSucceeded},
		{provider: "PAYMENT_FAILED_WEBHOOK", want: EventPaymentFailed},
		{provider: "PAYMENT_USER_DROPPED_WEBHOOK", want: EventPaymentFailed},
		{provider: "REFUND_STATUS_WEBHOOK", want: EventIgnored},
	}
	ts := "1717500000"
	for _, tt := range tests {
		payload := []byte(`{"type":"` + tt.provider + `"}`)
		headers := map[string]string{
			"x-webhook-signature": cashfreeSign("whsec_cf", ts, payload),
			"x-webhook-timestamp": ts,
		}
		event, err := a.ParseWebhookEvent(payload, headers)
		if err != nil {
			t.Fatalf("%s: %v", tt.provider, err)
		}
		if event.Type != tt.want {
			t.Fatalf("%s mapped to %q, want %q", tt.provider, event.Type, tt.want)
		}
	}
}

func TestCashfreeSubscriptionsUnsupported(t *testing.T) {
	a := cashfreeForTest(t)
	_, err := a.CreateSubscription(nil, SubscriptionParams{CustomerID: "c", PriceRef: "p"})
	if err == nil {
		t.Fatalf("expected unsupported operation error")
	}
	var gwErr *Error
	if !errors.As(err, &gwErr) || !gwErr.IsUnsupported() {
		t.Fatalf("err = %v, want unsupported gateway error", err)
	}
}
