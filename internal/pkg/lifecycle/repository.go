package lifecycle

import (
	"errors"
	"strings"
	"time"

	"github.com/campushq/campusbill/app/models"
	"gorm.io/gorm"
)

// SubscriptionRepository defines the interface for subscription-related
// database operations.
type SubscriptionRepository interface {
	Create(sub *models.Subscription) error
	GetByID(id uint) (*models.Subscription, error)
	GetActiveForSchool(tenantID, schoolID uint) (*models.Subscription, error)
	GetByGatewayRef(gateway, gatewaySubscriptionID string) (*models.Subscription, error)
	ListByTenant(tenantID uint) ([]models.Subscription, error)
	Update(sub *models.Subscription) error
	DueForRenewal(before time.Time) ([]models.Subscription, error)
	ExpiredTrials(now time.Time) ([]models.Subscription, error)
	PendingCancellations(now time.Time) ([]models.Subscription, error)
}

// subscriptionRepository implements SubscriptionRepository on GORM.
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance.
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(sub *models.Subscription) error {
	sub.SyncActiveKey()
	return r.db.Create(sub).Error
}

func (r *subscriptionRepository) GetByID(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.First(&sub, id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetActiveForSchool returns the single non-terminal subscription for a
// (tenant, school) pair, or gorm.ErrRecordNotFound.
func (r *subscriptionRepository) GetActiveForSchool(tenantID, schoolID uint) (*models.Subscription, error) {
	var sub models.Subscription
	key := models.ActiveSubscriptionKey(tenantID, schoolID)
	if err := r.db.Where("active_key = ?", key).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetByGatewayRef(gateway, gatewaySubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("gateway = ? AND gateway_subscription_id = ?", gateway, gatewaySubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) ListByTenant(tenantID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("tenant_id = ?", tenantID).Order("id ASC").Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepository) Update(sub *models.Subscription) error {
	sub.SyncActiveKey()
	return r.db.Save(sub).Error
}

// DueForRenewal selects billable subscriptions whose period ends before the
// cutoff and that are not flagged for period-end cancellation.
func (r *subscriptionRepository) DueForRenewal(before time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status IN ?", []string{models.SubscriptionStatusActive, models.SubscriptionStatusTrial}).
		Where("current_period_end <= ?", before).
		Where("cancel_at_period_end = ?", false).
		Order("current_period_end ASC").
		Find(&subs).Error
	return subs, err
}

// PendingCancellations selects subscriptions flagged for period-end
// cancellation whose period has ended but that are not canceled yet.
func (r *subscriptionRepository) PendingCancellations(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("cancel_at_period_end = ?", true).
		Where("current_period_end <= ?", now).
		Where("status <> ?", models.SubscriptionStatusCanceled).
		Find(&subs).Error
	return subs, err
}

// ExpiredTrials selects trial subscriptions whose trial window has passed.
func (r *subscriptionRepository) ExpiredTrials(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status = ?", models.SubscriptionStatusTrial).
		Where("trial_end IS NOT NULL AND trial_end <= ?", now).
		Find(&subs).Error
	return subs, err
}

// IsDuplicateKey reports whether an insert failed on a unique constraint.
// The active_key unique index turns a lost creation race into this error.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}
