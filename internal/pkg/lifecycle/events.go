package lifecycle

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/campushq/campusbill/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WebhookEventInput is a raw gateway webhook delivery to be stored.
type WebhookEventInput struct {
	Gateway        string
	GatewayEventID string
	EventType      string
	PayloadJSON    string
	SignatureValid bool
}

// RecordWebhookEvent persists webhook payloads idempotently. The second
// delivery of the same gateway event reports created=false and returns the
// stored row, so handlers can ack duplicates without reprocessing.
func (s *Service) RecordWebhookEvent(in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	eventID := strings.TrimSpace(in.GatewayEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Gateway:        in.Gateway,
		GatewayEventID: eventID,
		EventType:      strings.TrimSpace(in.EventType),
		PayloadJSON:    in.PayloadJSON,
		SignatureValid: in.SignatureValid,
	}

	tx := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "gateway"},
			{Name: "gateway_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := s.db.Where("gateway = ? AND gateway_event_id = ?", event.Gateway, event.GatewayEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(webhookEventID uint, processingErr error) error {
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": errMsg,
	}
	return s.db.Model(&models.WebhookEvent{}).Where("id = ?", webhookEventID).Updates(updates).Error
}

// DB exposes the raw handle for callers that need ad-hoc reads.
func (s *Service) DB() *gorm.DB { return s.db }
