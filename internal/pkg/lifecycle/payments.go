package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/campushq/campusbill/app/models"
	"github.com/campushq/campusbill/internal/pkg/apperr"
	"github.com/campushq/campusbill/internal/pkg/env"
	"github.com/campushq/campusbill/internal/pkg/gateway"
	"github.com/campushq/campusbill/internal/pkg/pricing"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentRepository defines the interface for payment transaction storage.
type PaymentRepository interface {
	Create(txn *models.PaymentTransaction) error
	GetByID(id uint) (*models.PaymentTransaction, error)
	GetByIdempotencyKey(key string) (*models.PaymentTransaction, error)
	GetByGatewayPaymentID(gatewayName, gatewayPaymentID string) (*models.PaymentTransaction, error)
	Update(txn *models.PaymentTransaction) error
	ListByTenant(tenantID uint, limit int) ([]models.PaymentTransaction, error)
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(txn *models.PaymentTransaction) error {
	return r.db.Create(txn).Error
}

func (r *paymentRepository) GetByID(id uint) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := r.db.First(&txn, id).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *paymentRepository) GetByIdempotencyKey(key string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := r.db.Where("idempotency_key = ?", key).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *paymentRepository) GetByGatewayPaymentID(gatewayName, gatewayPaymentID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.Where("gateway = ? AND gateway_payment_id = ?", gatewayName, gatewayPaymentID).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *paymentRepository) Update(txn *models.PaymentTransaction) error {
	return r.db.Save(txn).Error
}

func (r *paymentRepository) ListByTenant(tenantID uint, limit int) ([]models.PaymentTransaction, error) {
	var txns []models.PaymentTransaction
	err := r.db.Where("tenant_id = ?", tenantID).Order("id DESC").Limit(limit).Find(&txns).Error
	return txns, err
}

// PaymentParams describes a one-off charge. Amount is integer minor units;
// the controller converts from the request's major-unit representation
// before calling in.
type PaymentParams struct {
	TenantID        uint
	SubscriptionID  *uint
	Amount          int64
	Currency        string
	PaymentMethodID string
	Description     string
	IdempotencyKey  string
}

// CreatePayment charges a tenant through the best supported gateway and
// records the transaction. Repeating a call with the same idempotency key
// returns the original transaction instead of charging twice.
func (s *Service) CreatePayment(ctx context.Context, params PaymentParams) (*models.PaymentTransaction, error) {
	if params.Amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}
	if params.IdempotencyKey != "" {
		if existing, err := s.payments.GetByIdempotencyKey(params.IdempotencyKey); err == nil {
			return existing, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Internal("idempotency lookup", err)
		}
	} else {
		// Assign one so a gateway-side retry of this exact charge stays
		// deduplicatable on our side too.
		params.IdempotencyKey = uuid.NewString()
	}

	tenant, err := s.tenants.GetByID(params.TenantID)
	if err != nil {
		return nil, apperr.NotFound("tenant %d not found", params.TenantID)
	}

	currency := params.Currency
	if currency == "" {
		currency = tenant.Currency
	}

	amount := params.Amount
	names := s.registry.DetermineSupportedGateways(currency, tenant.Country)
	var conversion *pricing.ConversionResult
	if len(names) == 0 {
		conversion, names, err = s.settleInSupportedCurrency(amount, currency, tenant.Country)
		if err != nil {
			return nil, err
		}
		currency = conversion.Currency
		// The conversion fee is charged on top of the converted amount.
		amount = conversion.Amount + conversion.ConversionFee
		log.Infof("[Lifecycle] Converted %d %s to %d %s (rate %s) for tenant %d",
			conversion.OriginalAmount, conversion.OriginalCurrency, amount, currency, conversion.ExchangeRate, tenant.ID)
	}

	txn := &models.PaymentTransaction{
		TenantID:       params.TenantID,
		SubscriptionID: params.SubscriptionID,
		Amount:         amount,
		Currency:       currency,
		Status:         models.PaymentStatusPending,
		Description:    params.Description,
		IdempotencyKey: params.IdempotencyKey,
	}
	if conversion != nil {
		txn.OriginalAmount = conversion.OriginalAmount
		txn.OriginalCurrency = conversion.OriginalCurrency
		txn.ExchangeRate = conversion.ExchangeRate
		txn.ConversionFee = conversion.ConversionFee
	}

	var lastErr error
	for _, name := range names {
		adapter, err := s.registry.Adapter(name)
		if err != nil {
			continue
		}

		var intent *gateway.PaymentIntent
		err = gateway.WithRetry(ctx, name, "create_payment_intent", func() error {
			var pErr error
			intent, pErr = adapter.CreatePaymentIntent(ctx, gateway.PaymentIntentParams{
				Amount:          amount,
				Currency:        currency,
				PaymentMethodID: params.PaymentMethodID,
				Description:     params.Description,
				IdempotencyKey:  params.IdempotencyKey,
			})
			return pErr
		})
		if err != nil {
			lastErr = err
			log.Warnf("[Lifecycle] Payment via %s failed, trying next gateway: %v", name, err)
			continue
		}

		txn.Gateway = name
		txn.GatewayPaymentID = intent.ID
		if intent.Status == gateway.PaymentIntentStatusSucceeded {
			txn.Status = models.PaymentStatusSucceeded
		}
		if err := s.payments.Create(txn); err != nil {
			return nil, apperr.Internal("record payment transaction", err)
		}
		return txn, nil
	}

	var gwErr *gateway.Error
	if errors.As(lastErr, &gwErr) {
		return nil, apperr.GatewayFailure(gwErr.Gateway, gwErr.Code, gwErr.Type, gwErr.Message)
	}
	return nil, apperr.Internal("payment failed on all gateways", lastErr)
}

// RefundPayment refunds a recorded transaction through its original gateway.
func (s *Service) RefundPayment(ctx context.Context, transactionID uint, amount int64) (*models.PaymentTransaction, error) {
	txn, err := s.payments.GetByID(transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("payment transaction %d not found", transactionID)
		}
		return nil, apperr.Internal("load payment transaction", err)
	}
	if txn.Status != models.PaymentStatusSucceeded {
		return nil, apperr.Conflict("payment transaction %d is %s, only succeeded payments can be refunded", txn.ID, txn.Status)
	}
	if amount <= 0 || amount > txn.Amount {
		return nil, apperr.Validation("refund amount must be between 1 and %d", txn.Amount)
	}

	adapter, err := s.registry.Adapter(txn.Gateway)
	if err != nil {
		return nil, apperr.Internal("gateway unavailable", err)
	}
	err = gateway.WithRetry(ctx, txn.Gateway, "refund_payment", func() error {
		_, rErr := adapter.RefundPayment(ctx, txn.GatewayPaymentID, amount, txn.Currency)
		return rErr
	})
	if err != nil {
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) {
			return nil, apperr.GatewayFailure(gwErr.Gateway, gwErr.Code, gwErr.Type, gwErr.Message)
		}
		return nil, apperr.Internal("refund failed", err)
	}

	txn.Status = models.PaymentStatusRefunded
	if err := s.payments.Update(txn); err != nil {
		return nil, apperr.Internal("update payment transaction", err)
	}
	log.Infof("[Lifecycle] Refunded %d %s on transaction %d", amount, txn.Currency, txn.ID)
	return txn, nil
}

// settleInSupportedCurrency converts a charge into the configured settlement
// currency when no gateway accepts the tenant's own. The exchange rate comes
// from FX_RATE_<FROM>_<TO>; without one the charge is rejected rather than
// guessed.
func (s *Service) settleInSupportedCurrency(amount int64, currency, country string) (*pricing.ConversionResult, []string, error) {
	settle := strings.ToUpper(env.GetEnv("SETTLEMENT_CURRENCY", "USD"))
	if settle == strings.ToUpper(currency) {
		return nil, nil, apperr.Validation("no payment gateway supports currency %s in %s", currency, country)
	}
	rate := env.GetEnv("FX_RATE_"+strings.ToUpper(currency)+"_"+settle, "")
	if rate == "" {
		return nil, nil, apperr.Validation("no payment gateway supports currency %s in %s", currency, country)
	}

	result, err := pricing.ConvertCurrency(amount, strings.ToUpper(currency), settle, rate)
	if err != nil {
		return nil, nil, apperr.Internal("currency conversion", err)
	}
	names := s.registry.DetermineSupportedGateways(settle, country)
	if len(names) == 0 {
		return nil, nil, apperr.Validation("no payment gateway supports currency %s or settlement currency %s in %s", currency, settle, country)
	}
	return &result, names, nil
}

// renewalIdempotencyKey makes a renewal charge safe to retry within the same
// billing period.
func renewalIdempotencyKey(sub *models.Subscription) string {
	return fmt.Sprintf("renewal-%d-%s", sub.ID, sub.CurrentPeriodStart.Format("2006-01-02"))
}
