package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/campushq/campusbill/app/models"
)

const razorpayAPIBase = "https://api.razorpay.com/v1"

// RazorpayAdapter implements Adapter on the Razorpay REST API. Razorpay
// bills in paise, which are already minor units, so amount conversion is the
// identity mapping. Razorpay has no customer-delete endpoint; that gap is
// reported as an unsupported operation.
type RazorpayAdapter struct {
	keyID         string
	keySecret     string
	webhookSecret string
	rest          *restClient
}

// NewRazorpayAdapter creates an uninitialized Razorpay adapter.
func NewRazorpayAdapter() *RazorpayAdapter {
	return &RazorpayAdapter{}
}

func (a *RazorpayAdapter) Name() string { return models.GatewayRazorpay }

// Initialize wires API credentials. Required keys: key_id, key_secret.
// Optional: webhook_secret, base_url.
func (a *RazorpayAdapter) Initialize(creds Credentials) error {
	if creds["key_id"] == "" || creds["key_secret"] == "" {
		return NewError(a.Name(), ErrCodeAuthentication, ErrTypeConfig, "key_id and key_secret are required")
	}
	a.keyID = creds["key_id"]
	a.keySecret = creds["key_secret"]
	a.webhookSecret = creds["webhook_secret"]

	base := creds["base_url"]
	if base == "" {
		base = razorpayAPIBase
	}
	a.rest = newRESTClient(a.Name(), base, func(req *http.Request) {
		req.SetBasicAuth(a.keyID, a.keySecret)
	})
	return nil
}

func (a *RazorpayAdapter) HealthCheck(ctx context.Context) bool {
	return a.rest != nil
}

func (a *RazorpayAdapter) FormatAmount(amount int64, currency string) string {
	return minorUnitsToString(amount)
}

func (a *RazorpayAdapter) ParseAmount(value string, currency string) (int64, error) {
	return minorUnitsFromString(value)
}

func (a *RazorpayAdapter) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	body := map[string]any{
		"name":          params.Name,
		"email":         params.Email,
		"fail_existing": "0",
		"notes":         map[string]any{"tenant_id": itoa(params.TenantID)},
	}
	resp, gwErr := a.rest.do(ctx, http.MethodPost, "/customers", body)
	if gwErr != nil {
		return nil, gwErr
	}
	return &Customer{
		ID:    stringField(resp, "id"),
		Email: stringField(resp, "email"),
		Name:  stringField(resp, "name"),
	}, nil
}

func (a *RazorpayAdapter) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	resp, gwErr := a.rest.do(ctx, http.MethodGet, "/customers/"+id, nil)
	if gwErr != nil {
		return nil, gwErr
	}
	return &Customer{
		ID:    stringField(resp, "id"),
		Email: stringField(resp, "email"),
		Name:  stringField(resp, "name"),
	}, nil
}

func (a *RazorpayAdapter) DeleteCustomer(ctx context.Context, id string) error {
	return ErrUnsupported(a.Name(), "customer deletion")
}

// CreatePaymentIntent creates a Razorpay order; the returned short URL lets
// the customer complete the payment.
func (a *RazorpayAdapter) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error) {
	receipt := params.IdempotencyKey
	if receipt == "" {
		receipt = "cb-" + minorUnitsToString(time.Now().UnixNano())
	}
	body := map[string]any{
		"amount":   params.Amount,
		"currency": params.Currency,
		"receipt":  receipt,
		"notes":    map[string]any{"description": params.Description},
	}
	if params.CustomerID != "" {
		body["customer_id"] = params.CustomerID
	}

	resp, gwErr := a.rest.do(ctx, http.MethodPost, "/orders", body)
	if gwErr != nil {
		return nil, gwErr
	}
	return &PaymentIntent{
		ID:         stringField(resp, "id"),
		Amount:     intField(resp, "amount"),
		Currency:   stringField(resp, "currency"),
		Status:     razorpayPaymentStatus(stringField(resp, "status")),
		CustomerID: params.CustomerID,
		PaymentURL: stringField(resp, "short_url"),
		CreatedAt:  time.Now(),
	}, nil
}

// ConfirmPaymentIntent captures an authorized payment.
func (a *RazorpayAdapter) ConfirmPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	existing, gwErr := a.rest.do(ctx, http.MethodGet, "/payments/"+id, nil)
	if gwErr != nil {
		return nil, gwErr
	}

	status := stringField(existing, "status")
	if status == "authorized" {
		body := map[string]any{
			"amount":   intField(existing, "amount"),
			"currency": stringField(existing, "currency"),
		}
		captured, captureErr := a.rest.do(ctx, http.MethodPost, "/payments/"+id+"/capture", body)
		if captureErr != nil {
			return nil, captureErr
		}
		existing = captured
	}

	return &PaymentIntent{
		ID:        stringField(existing, "id"),
		Amount:    intField(existing, "amount"),
		Currency:  stringField(existing, "currency"),
		Status:    razorpayPaymentStatus(stringField(existing, "status")),
		CreatedAt: time.Now(),
	}, nil
}

func (a *RazorpayAdapter) RefundPayment(ctx context.Context, paymentID string, amount int64, currency string) (*Refund, error) {
	body := map[string]any{}
	if amount > 0 {
		body["amount"] = amount
	}
	resp, gwErr := a.rest.do(ctx, http.MethodPost, "/payments/"+paymentID+"/refund", body)
	if gwErr != nil {
		return nil, gwErr
	}
	return &Refund{
		ID:        stringField(resp, "id"),
		PaymentID: paymentID,
		Amount:    intField(resp, "amount"),
		Currency:  stringField(resp, "currency"),
		Status:    stringField(resp, "status"),
	}, nil
}

func (a *RazorpayAdapter) CreateSubscription(ctx context.Context, params SubscriptionParams) (*RemoteSubscription, error) {
	body := map[string]any{
		"plan_id":         params.PriceRef,
		"total_count":     12,
		"customer_notify": 1,
	}
	if params.TrialDays > 0 {
		body["start_at"] = time.Now().AddDate(0, 0, params.TrialDays).Unix()
	}

	resp, gwErr := a.rest.do(ctx, http.MethodPost, "/subscriptions", body)
	if gwErr != nil {
		return nil, gwErr
	}
	return a.toRemoteSubscription(resp), nil
}

func (a *RazorpayAdapter) UpdateSubscription(ctx context.Context, id string, params UpdateSubscriptionParams) (*RemoteSubscription, error) {
	body := map[string]any{
		"plan_id": params.PriceRef,
	}
	if params.ProrationBehavior == ProrationBehaviorNone {
		body["schedule_change_at"] = "cycle_end"
	} else {
		body["schedule_change_at"] = "now"
	}

	resp, gwErr := a.rest.do(ctx, http.MethodPatch, "/subscriptions/"+id, body)
	if gwErr != nil {
		return nil, gwErr
	}
	return a.toRemoteSubscription(resp), nil
}

func (a *RazorpayAdapter) CancelSubscription(ctx context.Context, id string, atPeriodEnd bool) (*RemoteSubscription, error) {
	cancelAtCycleEnd := 0
	if atPeriodEnd {
		cancelAtCycleEnd = 1
	}
	resp, gwErr := a.rest.do(ctx, http.MethodPost, "/subscriptions/"+id+"/cancel", map[string]any{
		"cancel_at_cycle_end": cancelAtCycleEnd,
	})
	if gwErr != nil {
		return nil, gwErr
	}
	return a.toRemoteSubscription(resp), nil
}

// VerifyWebhookSignature checks the X-Razorpay-Signature HMAC-SHA256 over
// the raw payload.
func (a *RazorpayAdapter) VerifyWebhookSignature(payload []byte, headers map[string]string) bool {
	signature := headers["X-Razorpay-Signature"]
	if signature == "" || a.webhookSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (a *RazorpayAdapter) ParseWebhookEvent(payload []byte, headers map[string]string) (*Event, error) {
	if !a.VerifyWebhookSignature(payload, headers) {
		return nil, NewError(a.Name(), ErrCodeAuthentication, ErrTypeBusiness, "webhook signature verification failed")
	}

	body, err := decodeJSONMap(payload)
	if err != nil {
		return nil, NewError(a.Name(), ErrCodeInvalidRequest, ErrTypeBusiness, "malformed event payload")
	}

	event := &Event{
		ID:      headers["X-Razorpay-Event-Id"],
		Gateway: a.Name(),
	}

	switch stringField(body, "event") {
	case "payment.captured":
		event.Type = EventPaymentSucceeded
	case "payment.failed":
		event.Type = EventPaymentFailed
	case "subscription.activated", "subscription.updated", "subscription.halted":
		event.Type = EventSubscriptionUpdated
	case "subscription.cancelled", "subscription.completed":
		event.Type = EventSubscriptionDeleted
	default:
		event.Type = EventIgnored
		return event, nil
	}

	if payment := entityPayload(body, "payment"); payment != nil {
		event.GatewayPaymentID = stringField(payment, "id")
		event.Amount = intField(payment, "amount")
		event.Currency = stringField(payment, "currency")
		event.Status = stringField(payment, "status")
	}
	if sub := entityPayload(body, "subscription"); sub != nil {
		event.GatewaySubscriptionID = stringField(sub, "id")
		event.GatewayCustomerID = stringField(sub, "customer_id")
		if event.Status == "" {
			event.Status = stringField(sub, "status")
		}
	}
	return event, nil
}

func (a *RazorpayAdapter) toRemoteSubscription(resp map[string]any) *RemoteSubscription {
	out := &RemoteSubscription{
		ID:         stringField(resp, "id"),
		CustomerID: stringField(resp, "customer_id"),
		PriceRef:   stringField(resp, "plan_id"),
		Status:     stringField(resp, "status"),
	}
	if end := intField(resp, "current_end"); end > 0 {
		t := time.Unix(end, 0)
		out.CurrentPeriodEnd = &t
	}
	return out
}

func razorpayPaymentStatus(status string) string {
	switch status {
	case "captured", "paid":
		return PaymentIntentStatusSucceeded
	case "failed":
		return PaymentIntentStatusFailed
	case "authorized":
		return PaymentIntentStatusRequiresAction
	default:
		return PaymentIntentStatusPending
	}
}

// entityPayload unwraps Razorpay's payload.<entity>.entity envelope.
func entityPayload(body map[string]any, entity string) map[string]any {
	payload, ok := body["payload"].(map[string]any)
	if !ok {
		return nil
	}
	wrapper, ok := payload[entity].(map[string]any)
	if !ok {
		return nil
	}
	inner, ok := wrapper["entity"].(map[string]any)
	if !ok {
		return nil
	}
	return inner
}

func intField(obj map[string]any, key string) int64 {
	if obj == nil {
		return 0
	}
	if v, ok := obj[key].(float64); ok {
		return int64(v)
	}
	return 0
}
