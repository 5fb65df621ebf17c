package models

import "time"

const (
	DunningActionEmail   = "email"
	DunningActionSMS     = "sms"
	DunningActionSuspend = "suspend"
	DunningActionCancel  = "cancel"
)

const (
	DunningCampaignStatusActive    = "active"
	DunningCampaignStatusCompleted = "completed"
	DunningCampaignStatusCancelled = "cancelled"
)

// DunningRule is one ordered escalation step. TriggerDays is the offset in
// days relative to campaign start (not relative to the previous step).
type DunningRule struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	TriggerDays     int       `gorm:"not null" json:"trigger_days"`
	Action          string    `gorm:"type:varchar(16);not null" json:"action"`
	MessageTemplate string    `gorm:"type:varchar(100)" json:"message_template,omitempty"`
	IsActive        bool      `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DunningCampaign tracks the escalation state for one subscription after a
// payment failure. At most one active campaign exists per subscription.
type DunningCampaign struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	SubscriptionID uint       `gorm:"not null;index:idx_dunning_campaigns_sub_status,priority:1" json:"subscription_id"`
	Status         string     `gorm:"type:varchar(16);not null;default:'active';index:idx_dunning_campaigns_sub_status,priority:2" json:"status"`
	CurrentStep    int        `gorm:"not null;default:0" json:"current_step"`
	TotalSteps     int        `gorm:"not null;default:0" json:"total_steps"`
	NextActionAt   *time.Time `gorm:"type:timestamp;default:null;index" json:"next_action_at,omitempty"`
	StartedAt      time.Time  `gorm:"type:timestamp;not null" json:"started_at"`
	CompletedAt    *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
