package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/campushq/campusbill/app/models"
)

// StripeAdapter implements Adapter on the Stripe API. Stripe bills in minor
// units natively, so amount conversion is the identity mapping.
type StripeAdapter struct {
	apiKey        string
	webhookSecret string
}

// NewStripeAdapter creates an uninitialized Stripe adapter.
func NewStripeAdapter() *StripeAdapter {
	return &StripeAdapter{}
}

func (a *StripeAdapter) Name() string { return models.GatewayStripe }

// Initialize wires API credentials. Required keys: api_key, webhook_secret.
func (a *StripeAdapter) Initialize(creds Credentials) error {
	apiKey := creds["api_key"]
	if apiKey == "" {
		return NewError(a.Name(), ErrCodeAuthentication, ErrTypeConfig, "api_key is required")
	}
	a.apiKey = apiKey
	a.webhookSecret = creds["webhook_secret"]
	stripe.Key = apiKey
	return nil
}

func (a *StripeAdapter) HealthCheck(ctx context.Context) bool {
	return a.apiKey != ""
}

func (a *StripeAdapter) FormatAmount(amount int64, currency string) string {
	return minorUnitsToString(amount)
}

func (a *StripeAdapter) ParseAmount(value string, currency string) (int64, error) {
	return minorUnitsFromString(value)
}

func (a *StripeAdapter) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	cp := &stripe.CustomerParams{
		Email: stripe.String(params.Email),
		Name:  stripe.String(params.Name),
	}
	cp.Context = ctx
	cp.AddMetadata("tenant_id", itoa(params.TenantID))

	c, err := customer.New(cp)
	if err != nil {
		return nil, a.wrapErr(err)
	}
	return &Customer{ID: c.ID, Email: c.Email, Name: c.Name}, nil
}

func (a *StripeAdapter) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	cp := &stripe.CustomerParams{}
	cp.Context = ctx
	c, err := customer.Get(id, cp)
	if err != nil {
		return nil, a.wrapErr(err)
	}
	return &Customer{ID: c.ID, Email: c.Email, Name: c.Name}, nil
}

func (a *StripeAdapter) DeleteCustomer(ctx context.Context, id string) error {
	cp := &stripe.CustomerParams{}
	cp.Context = ctx
	if _, err := customer.Del(id, cp); err != nil {
		return a.wrapErr(err)
	}
	return nil
}

func (a *StripeAdapter) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error) {
	pp := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(params.Amount),
		Currency:    stripe.String(params.Currency),
		Description: stripe.String(params.Description),
	}
	pp.Context = ctx
	if params.CustomerID != "" {
		pp.Customer = stripe.String(params.CustomerID)
	}
	if params.PaymentMethodID != "" {
		pp.PaymentMethod = stripe.String(params.PaymentMethodID)
	}
	if params.IdempotencyKey != "" {
		pp.SetIdempotencyKey(params.IdempotencyKey)
	}

	pi, err := paymentintent.New(pp)
	if err != nil {
		return nil, a.wrapErr(err)
	}
	return a.toPaymentIntent(pi), nil
}

func (a *StripeAdapter) ConfirmPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	cp := &stripe.PaymentIntentConfirmParams{}
	cp.Context = ctx
	pi, err := paymentintent.Confirm(id, cp)
	if err != nil {
		return nil, a.wrapErr(err)
	}
	return a.toPaymentIntent(pi), nil
}

func (a *StripeAdapter) RefundPayment(ctx context.Context, paymentID string, amount int64, currency string) (*Refund, error) {
	rp := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentID),
	}
	rp.Context = ctx
	if amount > 0 {
		rp.Amount = stripe.Int64(amount)
	}
	r, err := refund.New(rp)
	if err != nil {
		return nil, a.wrapErr(err)
	}
	return &Refund{
		ID:        r.ID,
		PaymentID: paymentID,
		Amount:    r.Amount,
		Currency:  string(r.Currency),
		Status:    string(r.Status),
	}, nil
}

func (a *StripeAdapter) CreateSubscription(ctx context.Context, params SubscriptionParams) (*RemoteSubscription, error) {
	sp := &stripe.SubscriptionParams{
		Customer: stripe.String(params.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(params.PriceRef)},
		},
	}
	sp.Context = ctx
	if params.TrialDays > 0 {
		sp.TrialPeriodDays = stripe.Int64(int64(params.TrialDays))
	}

	sub, err := subscription.New(sp)
	if err != nil {
		return nil, a.wrapErr(err)
	}
	return a.toRemoteSubscription(sub), nil
}

func (a *StripeAdapter) UpdateSubscription(ctx context.Context, id string, params UpdateSubscriptionParams) (*RemoteSubscription, error) {
	gp := &stripe.SubscriptionParams{}
	gp.Context = ctx
	existing, err := subscription.Get(id, gp)
	if err != nil {
		return nil, a.wrapErr(err)
	}
	if len(existing.Items.Data) == 0 {
		return nil, NewError(a.Name(), ErrCodeInvalidRequest, ErrTypeBusiness, "subscription %s has no items", id)
	}

	up := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(existing.Items.Data[0].ID),
				Price: stripe.String(params.PriceRef),
			},
		},
		ProrationBehavior: stripe.String(params.ProrationBehavior),
	}
	up.Context = ctx

	sub, err := subscription.Update(id, up)
	if err != nil {
		return nil, a.wrapErr(err)
	}
	return a.toRemoteSubscription(sub), nil
}

func (a *StripeAdapter) CancelSubscription(ctx context.Context, id string, atPeriodEnd bool) (*RemoteSubscription, error) {
	if atPeriodEnd {
		up := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
		up.Context = ctx
		sub, err := subscription.Update(id, up)
		if err != nil {
			return nil, a.wrapErr(err)
		}
		return a.toRemoteSubscription(sub), nil
	}

	cp := &stripe.SubscriptionCancelParams{}
	cp.Context = ctx
	sub, err := subscription.Cancel(id, cp)
	if err != nil {
		return nil, a.wrapErr(err)
	}
	return a.toRemoteSubscription(sub), nil
}

func (a *StripeAdapter) VerifyWebhookSignature(payload []byte, headers map[string]string) bool {
	_, err := webhook.ConstructEvent(payload, headers["Stripe-Signature"], a.webhookSecret)
	return err == nil
}

func (a *StripeAdapter) ParseWebhookEvent(payload []byte, headers map[string]string) (*Event, error) {
	event, err := webhook.ConstructEvent(payload, headers["Stripe-Signature"], a.webhookSecret)
	if err != nil {
		return nil, NewError(a.Name(), ErrCodeAuthentication, ErrTypeBusiness, "webhook signature verification failed")
	}

	normalized := &Event{ID: event.ID, Gateway: a.Name()}

	var obj map[string]any
	if len(event.Data.Raw) > 0 {
		if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
			return nil, NewError(a.Name(), ErrCodeInvalidRequest, ErrTypeBusiness, "malformed event payload")
		}
	}

	switch event.Type {
	case "invoice.payment_succeeded":
		normalized.Type = EventPaymentSucceeded
	case "invoice.payment_failed":
		normalized.Type = EventPaymentFailed
	case "customer.subscription.updated":
		normalized.Type = EventSubscriptionUpdated
	case "customer.subscription.deleted":
		normalized.Type = EventSubscriptionDeleted
	default:
		normalized.Type = EventIgnored
		return normalized, nil
	}

	normalized.GatewayCustomerID = stringField(obj, "customer")
	normalized.Status = stringField(obj, "status")
	normalized.Currency = stringField(obj, "currency")

	switch normalized.Type {
	case EventPaymentSucceeded, EventPaymentFailed:
		normalized.GatewaySubscriptionID = stringField(obj, "subscription")
		normalized.GatewayPaymentID = stringField(obj, "payment_intent")
		if v, ok := obj["amount_due"].(float64); ok {
			normalized.Amount = int64(v)
		}
		if v, ok := obj["amount_paid"].(float64); ok && normalized.Type == EventPaymentSucceeded {
			normalized.Amount = int64(v)
		}
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		normalized.GatewaySubscriptionID = stringField(obj, "id")
	}

	return normalized, nil
}

func (a *StripeAdapter) toPaymentIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	out := &PaymentIntent{
		ID:        pi.ID,
		Amount:    pi.Amount,
		Currency:  string(pi.Currency),
		CreatedAt: time.Unix(pi.Created, 0),
	}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		out.Status = PaymentIntentStatusSucceeded
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		out.Status = PaymentIntentStatusRequiresAction
	case stripe.PaymentIntentStatusCanceled:
		out.Status = PaymentIntentStatusFailed
	default:
		out.Status = PaymentIntentStatusPending
	}
	return out
}

func (a *StripeAdapter) toRemoteSubscription(sub *stripe.Subscription) *RemoteSubscription {
	out := &RemoteSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		out.PriceRef = sub.Items.Data[0].Price.ID
	}
	return out
}

// wrapErr maps Stripe errors onto the normalized taxonomy. Card errors are
// business declines and must never be retried; connection and server errors
// are transient.
func (a *StripeAdapter) wrapErr(err error) *Error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return NewError(a.Name(), ErrCodeNetwork, ErrTypeTransient, "%v", err)
	}

	switch se.Type {
	case stripe.ErrorTypeCard:
		return NewError(a.Name(), ErrCodeCardDeclined, ErrTypeBusiness, "%s", se.Msg)
	case stripe.ErrorTypeInvalidRequest:
		code := ErrCodeInvalidRequest
		if se.HTTPStatusCode == 404 {
			code = ErrCodeNotFound
		}
		return NewError(a.Name(), code, ErrTypeBusiness, "%s", se.Msg)
	case stripe.ErrorTypeAuthentication:
		return NewError(a.Name(), ErrCodeAuthentication, ErrTypeConfig, "%s", se.Msg)
	case stripe.ErrorTypeAPI:
		return NewError(a.Name(), ErrCodeNetwork, ErrTypeTransient, "%s", se.Msg)
	default:
		if se.HTTPStatusCode == 429 {
			return NewError(a.Name(), ErrCodeRateLimited, ErrTypeTransient, "%s", se.Msg)
		}
		return NewError(a.Name(), ErrCodeUnknown, ErrTypeTransient, "%s", se.Msg)
	}
}

func stringField(obj map[string]any, key string) string {
	if obj == nil {
		return ""
	}
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}

func itoa(v uint) string {
	return minorUnitsToString(int64(v))
}
