package gateway

import (
	"context"
	"fmt"
	"time"
)

// Error codes shared across all gateway adapters. Provider-specific codes are
// mapped onto these before a result leaves an adapter.
const (
	ErrCodeUnsupportedOperation = "unsupported_operation"
	ErrCodeCardDeclined         = "card_declined"
	ErrCodeInvalidRequest       = "invalid_request"
	ErrCodeAuthentication       = "authentication_failed"
	ErrCodeRateLimited          = "rate_limited"
	ErrCodeNetwork              = "network_error"
	ErrCodeNotFound             = "not_found"
	ErrCodeUnknown              = "unknown"
)

// Error types: business errors must never be retried, transient errors may be.
const (
	ErrTypeBusiness  = "business"
	ErrTypeTransient = "transient"
	ErrTypeConfig    = "config"
)

// Error is the normalized gateway failure. Adapters never let a raw provider
// error escape; every failure is wrapped into one of these.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Gateway string `json:"gateway"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Gateway, e.Message, e.Code)
}

// IsTransient reports whether the failure is worth retrying.
func (e *Error) IsTransient() bool { return e.Type == ErrTypeTransient }

// IsUnsupported reports a capability gap the caller should recover from
// locally rather than treat as a failure.
func (e *Error) IsUnsupported() bool { return e.Code == ErrCodeUnsupportedOperation }

// NewError builds a normalized gateway error.
func NewError(gw, code, errType, format string, args ...any) *Error {
	return &Error{Gateway: gw, Code: code, Type: errType, Message: fmt.Sprintf(format, args...)}
}

// ErrUnsupported marks an operation the gateway has no native support for.
func ErrUnsupported(gw, operation string) *Error {
	return NewError(gw, ErrCodeUnsupportedOperation, ErrTypeBusiness, "operation %s is not supported", operation)
}

// Credentials is the opaque credential bag resolved from the environment for
// one gateway.
type Credentials map[string]string

// Customer is the normalized remote customer record.
type Customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CustomerParams creates or updates a remote customer.
type CustomerParams struct {
	Email    string
	Name     string
	TenantID uint
}

// PaymentIntentStatus values normalized across providers.
const (
	PaymentIntentStatusPending        = "pending"
	PaymentIntentStatusRequiresAction = "requires_action"
	PaymentIntentStatusSucceeded      = "succeeded"
	PaymentIntentStatusFailed         = "failed"
)

// PaymentIntent is the normalized charge object. Amount is always in the
// platform's canonical integer minor units regardless of what the provider
// speaks natively.
type PaymentIntent struct {
	ID           string    `json:"id"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	CustomerID   string    `json:"customer_id,omitempty"`
	PaymentURL   string    `json:"payment_url,omitempty"`
	FailureCode  string    `json:"failure_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// PaymentIntentParams creates a charge.
type PaymentIntentParams struct {
	Amount          int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	Description     string
	IdempotencyKey  string
}

// Refund is the normalized refund result.
type Refund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
}

// RemoteSubscription is the provider-side subscription record.
type RemoteSubscription struct {
	ID                string     `json:"id"`
	CustomerID        string     `json:"customer_id"`
	PriceRef          string     `json:"price_ref"`
	Status            string     `json:"status"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
}

// SubscriptionParams creates a remote subscription.
type SubscriptionParams struct {
	CustomerID string
	PriceRef   string
	TrialDays  int
}

// Proration behavior pushed to the gateway on plan changes.
const (
	ProrationBehaviorCreate = "create_prorations"
	ProrationBehaviorNone   = "none"
)

// UpdateSubscriptionParams changes a remote subscription's price.
type UpdateSubscriptionParams struct {
	PriceRef          string
	ProrationBehavior string
}

// Normalized webhook event taxonomy. Every adapter's ParseWebhookEvent maps
// provider events onto these types; unknown provider events become
// EventIgnored rather than errors so webhook endpoints can ack them.
const (
	EventPaymentSucceeded    = "payment_succeeded"
	EventPaymentFailed       = "payment_failed"
	EventSubscriptionUpdated = "subscription_updated"
	EventSubscriptionDeleted = "subscription_deleted"
	EventIgnored             = "ignored"
)

// Event is a normalized webhook event.
type Event struct {
	ID                    string `json:"id"`
	Type                  string `json:"type"`
	Gateway               string `json:"gateway"`
	GatewayCustomerID     string `json:"gateway_customer_id,omitempty"`
	GatewaySubscriptionID string `json:"gateway_subscription_id,omitempty"`
	GatewayPaymentID      string `json:"gateway_payment_id,omitempty"`
	Amount                int64  `json:"amount,omitempty"`
	Currency              string `json:"currency,omitempty"`
	Status                string `json:"status,omitempty"`
}

// Adapter is the uniform contract every payment provider implements. All
// amounts crossing this interface are integer minor units; each adapter owns
// the conversion to its provider's native representation via
// FormatAmount/ParseAmount, and the two must be exactly inverse.
//
// Capability gaps are explicit: an adapter lacking a native operation returns
// an ErrCodeUnsupportedOperation error instead of failing silently.
type Adapter interface {
	Name() string
	Initialize(creds Credentials) error
	HealthCheck(ctx context.Context) bool

	FormatAmount(amount int64, currency string) string
	ParseAmount(value string, currency string) (int64, error)

	CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	DeleteCustomer(ctx context.Context, id string) error

	CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error)
	ConfirmPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	RefundPayment(ctx context.Context, paymentID string, amount int64, currency string) (*Refund, error)

	CreateSubscription(ctx context.Context, params SubscriptionParams) (*RemoteSubscription, error)
	UpdateSubscription(ctx context.Context, id string, params UpdateSubscriptionParams) (*RemoteSubscription, error)
	CancelSubscription(ctx context.Context, id string, atPeriodEnd bool) (*RemoteSubscription, error)

	VerifyWebhookSignature(payload []byte, headers map[string]string) bool
	ParseWebhookEvent(payload []byte, headers map[string]string) (*Event, error)
}
