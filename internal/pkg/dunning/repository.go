package dunning

import (
	"time"

	"github.com/campushq/campusbill/app/models"
	"gorm.io/gorm"
)

// Repository defines the interface for dunning rule and campaign storage.
type Repository interface {
	ActiveRules() ([]models.DunningRule, error)
	CreateCampaign(campaign *models.DunningCampaign) error
	GetActiveCampaign(subscriptionID uint) (*models.DunningCampaign, error)
	ActiveCampaignsForSubscription(subscriptionID uint) ([]models.DunningCampaign, error)
	DueCampaigns(now time.Time) ([]models.DunningCampaign, error)
	UpdateCampaign(campaign *models.DunningCampaign) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// ActiveRules returns the escalation steps in trigger order.
func (r *repository) ActiveRules() ([]models.DunningRule, error) {
	var rules []models.DunningRule
	err := r.db.Where("is_active = ?", true).Order("trigger_days ASC, id ASC").Find(&rules).Error
	return rules, err
}

func (r *repository) CreateCampaign(campaign *models.DunningCampaign) error {
	return r.db.Create(campaign).Error
}

func (r *repository) GetActiveCampaign(subscriptionID uint) (*models.DunningCampaign, error) {
	var campaign models.DunningCampaign
	err := r.db.
		Where("subscription_id = ? AND status = ?", subscriptionID, models.DunningCampaignStatusActive).
		First(&campaign).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (r *repository) ActiveCampaignsForSubscription(subscriptionID uint) ([]models.DunningCampaign, error) {
	var campaigns []models.DunningCampaign
	err := r.db.
		Where("subscription_id = ? AND status = ?", subscriptionID, models.DunningCampaignStatusActive).
		Find(&campaigns).Error
	return campaigns, err
}

// DueCampaigns selects active campaigns whose next action date has passed.
func (r *repository) DueCampaigns(now time.Time) ([]models.DunningCampaign, error) {
	var campaigns []models.DunningCampaign
	err := r.db.
		Where("status = ?", models.DunningCampaignStatusActive).
		Where("next_action_at IS NOT NULL AND next_action_at <= ?", now).
		Order("next_action_at ASC").
		Find(&campaigns).Error
	return campaigns, err
}

func (r *repository) UpdateCampaign(campaign *models.DunningCampaign) error {
	return r.db.Save(campaign).Error
}

// EnsureSeedRules inserts the default escalation ladder if no rules exist:
// reminder emails on day 1, 3 and 7, suspension on day 14 and cancellation
// on day 30 after campaign start.
func EnsureSeedRules(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.DunningRule{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	rules := []models.DunningRule{
		{TriggerDays: 1, Action: models.DunningActionEmail, MessageTemplate: "payment_reminder_first", IsActive: true},
		{TriggerDays: 3, Action: models.DunningActionEmail, MessageTemplate: "payment_reminder_second", IsActive: true},
		{TriggerDays: 7, Action: models.DunningActionEmail, MessageTemplate: "payment_reminder_final", IsActive: true},
		{TriggerDays: 14, Action: models.DunningActionSuspend, MessageTemplate: "account_suspended", IsActive: true},
		{TriggerDays: 30, Action: models.DunningActionCancel, MessageTemplate: "subscription_canceled", IsActive: true},
	}
	return db.Create(&rules).Error
}
