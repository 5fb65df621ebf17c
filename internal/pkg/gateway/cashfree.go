package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/campushq/campusbill/app/models"
	"github.com/shopspring/decimal"
)

const (
	cashfreeAPIBase    = "https://api.cashfree.com/pg"
	cashfreeAPIVersion = "2023-08-01"
)

// CashfreeAdapter implements Adapter on the Cashfree PG REST API. Cashfree
// bills in major units (rupees, not paise), so FormatAmount divides by 100
// and ParseAmount multiplies back. Cashfree has no native recurring
// subscription API on this surface and no customer objects; both gaps are
// reported as unsupported operations and the lifecycle manager runs those
// subscriptions locally.
type CashfreeAdapter struct {
	appID         string
	secretKey     string
	webhookSecret string
	rest          *restClient
}

// NewCashfreeAdapter creates an uninitialized Cashfree adapter.
func NewCashfreeAdapter() *CashfreeAdapter {
	return &CashfreeAdapter{}
}

func (a *CashfreeAdapter) Name() string { return models.GatewayCashfree }

// Initialize wires API credentials. Required keys: app_id, secret_key.
// Optional: webhook_secret, base_url.
func (a *CashfreeAdapter) Initialize(creds Credentials) error {
	if creds["app_id"] == "" || creds["secret_key"] == "" {
		return NewError(a.Name(), ErrCodeAuthentication, ErrTypeConfig, "app_id and secret_key are required")
	}
	a.appID = creds["app_id"]
	a.secretKey = creds["secret_key"]
	a.webhookSecret = creds["webhook_secret"]
	if a.webhookSecret == "" {
		a.webhookSecret = a.secretKey
	}

	base := creds["base_url"]
	if base == "" {
		base = cashfreeAPIBase
	}
	a.rest = newRESTClient(a.Name(), base, func(req *http.Request) {
		req.Header.Set("x-client-id", a.appID)
		req.Header.Set("x-client-secret", a.secretKey)
		req.Header.Set("x-api-version", cashfreeAPIVersion)
	})
	return nil
}

func (a *CashfreeAdapter) HealthCheck(ctx context.Context) bool {
	return a.rest != nil
}

// FormatAmount converts canonical minor units to Cashfree's major units.
func (a *CashfreeAdapter) FormatAmount(amount int64, currency string) string {
	return majorUnitsToString(amount)
}

// ParseAmount converts a major-unit amount back to canonical minor units.
func (a *CashfreeAdapter) ParseAmount(value string, currency string) (int64, error) {
	return majorUnitsFromString(value)
}

// CreateCustomer returns a synthetic customer: Cashfree identifies customers
// inline per order rather than as standalone objects.
func (a *CashfreeAdapter) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	return &Customer{
		ID:    "cf-tenant-" + itoa(params.TenantID),
		Email: params.Email,
		Name:  params.Name,
	}, nil
}

func (a *CashfreeAdapter) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	return nil, ErrUnsupported(a.Name(), "customer retrieval")
}

func (a *CashfreeAdapter) DeleteCustomer(ctx context.Context, id string) error {
	return ErrUnsupported(a.Name(), "customer deletion")
}

func (a *CashfreeAdapter) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error) {
	orderID := params.IdempotencyKey
	if orderID == "" {
		orderID = "cb-" + minorUnitsToString(time.Now().UnixNano())
	}

	orderAmount, err := decimal.NewFromString(a.FormatAmount(params.Amount, params.Currency))
	if err != nil {
		return nil, NewError(a.Name(), ErrCodeInvalidRequest, ErrTypeBusiness, "format amount: %v", err)
	}

	body := map[string]any{
		"order_id":       orderID,
		"order_amount":   orderAmount.InexactFloat64(),
		"order_currency": params.Currency,
		"order_note":     params.Description,
		"customer_details": map[string]any{
			"customer_id": params.CustomerID,
		},
	}

	resp, gwErr := a.rest.do(ctx, http.MethodPost, "/orders", body)
	if gwErr != nil {
		return nil, gwErr
	}
	return a.toPaymentIntent(resp)
}

func (a *CashfreeAdapter) ConfirmPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	resp, gwErr := a.rest.do(ctx, http.MethodGet, "/orders/"+id, nil)
	if gwErr != nil {
		return nil, gwErr
	}
	return a.toPaymentIntent(resp)
}

func (a *CashfreeAdapter) RefundPayment(ctx context.Context, paymentID string, amount int64, currency string) (*Refund, error) {
	refundAmount, err := decimal.NewFromString(a.FormatAmount(amount, currency))
	if err != nil {
		return nil, NewError(a.Name(), ErrCodeInvalidRequest, ErrTypeBusiness, "format amount: %v", err)
	}
	body := map[string]any{
		"refund_amount": refundAmount.InexactFloat64(),
		"refund_id":     "rf-" + minorUnitsToString(time.Now().UnixNano()),
	}

	resp, gwErr := a.rest.do(ctx, http.MethodPost, "/orders/"+paymentID+"/refunds", body)
	if gwErr != nil {
		return nil, gwErr
	}

	refunded, parseErr := a.ParseAmount(decimal.NewFromFloat(floatField(resp, "refund_amount")).StringFixed(2), currency)
	if parseErr != nil {
		refunded = amount
	}
	return &Refund{
		ID:        stringField(resp, "cf_refund_id"),
		PaymentID: paymentID,
		Amount:    refunded,
		Currency:  currency,
		Status:    stringField(resp, "refund_status"),
	}, nil
}

// CreateSubscription is unsupported: recurring billing for Cashfree tenants
// runs entirely on the local renewal loop.
func (a *CashfreeAdapter) CreateSubscription(ctx context.Context, params SubscriptionParams) (*RemoteSubscription, error) {
	return nil, ErrUnsupported(a.Name(), "native subscriptions")
}

func (a *CashfreeAdapter) UpdateSubscription(ctx context.Context, id string, params UpdateSubscriptionParams) (*RemoteSubscription, error) {
	return nil, ErrUnsupported(a.Name(), "native subscriptions")
}

func (a *CashfreeAdapter) CancelSubscription(ctx context.Context, id string, atPeriodEnd bool) (*RemoteSubscription, error) {
	return nil, ErrUnsupported(a.Name(), "native subscriptions")
}

// VerifyWebhookSignature checks the base64 HMAC-SHA256 signature Cashfree
// sends as x-webhook-signature over timestamp+payload.
func (a *CashfreeAdapter) VerifyWebhookSignature(payload []byte, headers map[string]string) bool {
	signature := headers["x-webhook-signature"]
	timestamp := headers["x-webhook-timestamp"]
	if signature == "" || a.webhookSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (a *CashfreeAdapter) ParseWebhookEvent(payload []byte, headers map[string]string) (*Event, error) {
	if !a.VerifyWebhookSignature(payload, headers) {
		return nil, NewError(a.Name(), ErrCodeAuthentication, ErrTypeBusiness, "webhook signature verification failed")
	}

	body, err := decodeJSONMap(payload)
	if err != nil {
		return nil, NewError(a.Name(), ErrCodeInvalidRequest, ErrTypeBusiness, "malformed event payload")
	}

	event := &Event{
		ID:      headers["x-webhook-timestamp"],
		Gateway: a.Name(),
	}

	switch stringField(body, "type") {
	case "PAYMENT_SUCCESS_WEBHOOK":
		event.Type = EventPaymentSucceeded
	case "PAYMENT_FAILED_WEBHOOK", "PAYMENT_USER_DROPPED_WEBHOOK":
		event.Type = EventPaymentFailed
	default:
		event.Type = EventIgnored
		return event, nil
	}

	data, _ := body["data"].(map[string]any)
	if order, ok := data["order"].(map[string]any); ok {
		event.GatewayPaymentID = stringField(order, "order_id")
		event.Currency = stringField(order, "order_currency")
		if amount := floatField(order, "order_amount"); amount > 0 {
			if minor, err := a.ParseAmount(decimal.NewFromFloat(amount).StringFixed(2), event.Currency); err == nil {
				event.Amount = minor
			}
		}
	}
	if payment, ok := data["payment"].(map[string]any); ok {
		event.Status = stringField(payment, "payment_status")
	}
	if cust, ok := data["customer_details"].(map[string]any); ok {
		event.GatewayCustomerID = stringField(cust, "customer_id")
	}
	return event, nil
}

func (a *CashfreeAdapter) toPaymentIntent(resp map[string]any) (*PaymentIntent, error) {
	currency := stringField(resp, "order_currency")
	amount, err := a.ParseAmount(decimal.NewFromFloat(floatField(resp, "order_amount")).StringFixed(2), currency)
	if err != nil {
		return nil, NewError(a.Name(), ErrCodeUnknown, ErrTypeTransient, "parse order amount: %v", err)
	}

	var status string
	switch stringField(resp, "order_status") {
	case "PAID":
		status = PaymentIntentStatusSucceeded
	case "EXPIRED", "TERMINATED":
		status = PaymentIntentStatusFailed
	default:
		status = PaymentIntentStatusPending
	}

	return &PaymentIntent{
		ID:         stringField(resp, "order_id"),
		Amount:     amount,
		Currency:   currency,
		Status:     status,
		PaymentURL: stringField(resp, "payment_link"),
		CreatedAt:  time.Now(),
	}, nil
}

func floatField(obj map[string]any, key string) float64 {
	if obj == nil {
		return 0
	}
	if v, ok := obj[key].(float64); ok {
		return v
	}
	return 0
}
