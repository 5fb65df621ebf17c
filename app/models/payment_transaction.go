package models

import "time"

const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// PaymentTransaction records one charge or refund attempt against a gateway.
// Amounts are integer minor units. For cross-currency charges the original
// amount/currency and the applied exchange rate are kept for audit.
type PaymentTransaction struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	TenantID           uint      `gorm:"not null;index" json:"tenant_id"`
	SubscriptionID     *uint     `gorm:"index" json:"subscription_id,omitempty"`
	Gateway            string    `gorm:"type:varchar(20);not null;index" json:"gateway"`
	GatewayPaymentID   string    `gorm:"type:varchar(191);index" json:"gateway_payment_id,omitempty"`
	Amount             int64     `gorm:"not null" json:"amount"`
	Currency           string    `gorm:"type:varchar(3);not null" json:"currency"`
	OriginalAmount     int64     `json:"original_amount,omitempty"`
	OriginalCurrency   string    `gorm:"type:varchar(3)" json:"original_currency,omitempty"`
	ExchangeRate       string    `gorm:"type:varchar(32)" json:"exchange_rate,omitempty"`
	GatewayFee         int64     `json:"gateway_fee,omitempty"`
	ConversionFee      int64     `json:"conversion_fee,omitempty"`
	Status             string    `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	Description        string    `gorm:"type:varchar(255)" json:"description,omitempty"`
	FailureCode        string    `gorm:"type:varchar(64)" json:"failure_code,omitempty"`
	FailureMessage     string    `gorm:"type:text" json:"failure_message,omitempty"`
	IdempotencyKey     string    `gorm:"type:varchar(64);index" json:"idempotency_key,omitempty"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
