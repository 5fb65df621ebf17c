package models

import "time"

// WebhookEvent stores gateway webhook payloads with deduplication metadata
// for idempotent processing. Signature verification happens before the row
// is written; unverifiable events are still recorded for audit.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Gateway         string     `gorm:"type:varchar(20);not null;index:ux_webhook_events_gateway_event,unique,priority:1;index" json:"gateway"`
	GatewayEventID  string     `gorm:"type:varchar(191);not null;default:'';index:ux_webhook_events_gateway_event,unique,priority:2" json:"gateway_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
