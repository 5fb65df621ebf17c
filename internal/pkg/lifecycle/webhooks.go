package lifecycle

import (
	"errors"
	"time"

	"github.com/campushq/campusbill/app/models"
	"github.com/campushq/campusbill/internal/pkg/gateway"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// HandleWebhookEvent applies a normalized gateway event to local state.
// Events that reference nothing we know about are logged and acked; the
// provider will not be asked to redeliver what we cannot use.
func (s *Service) HandleWebhookEvent(event *gateway.Event) error {
	switch event.Type {
	case gateway.EventPaymentSucceeded:
		return s.applyPaymentEvent(event, true)
	case gateway.EventPaymentFailed:
		return s.applyPaymentEvent(event, false)
	case gateway.EventSubscriptionUpdated:
		return s.syncRemoteStatus(event)
	case gateway.EventSubscriptionDeleted:
		return s.applyRemoteDeletion(event)
	case gateway.EventIgnored:
		return nil
	default:
		log.Warnf("[Lifecycle] Unhandled webhook event type %q from %s", event.Type, event.Gateway)
		return nil
	}
}

func (s *Service) applyPaymentEvent(event *gateway.Event, succeeded bool) error {
	if event.GatewayPaymentID != "" {
		s.reconcileTransaction(event, succeeded)
	}

	sub := s.subscriptionForEvent(event)
	if sub == nil {
		log.Infof("[Lifecycle] Payment event %s from %s matches no subscription", event.ID, event.Gateway)
		return nil
	}
	if succeeded {
		return s.RecordPaymentSuccess(sub.ID)
	}
	return s.RecordPaymentFailure(sub.ID, event.Status, "payment failed at "+event.Gateway)
}

// reconcileTransaction syncs the stored transaction row with the gateway's
// final word on the payment.
func (s *Service) reconcileTransaction(event *gateway.Event, succeeded bool) {
	txn, err := s.payments.GetByGatewayPaymentID(event.Gateway, event.GatewayPaymentID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("[Lifecycle] Transaction lookup failed for %s payment %s: %v", event.Gateway, event.GatewayPaymentID, err)
		}
		return
	}
	status := models.PaymentStatusFailed
	if succeeded {
		status = models.PaymentStatusSucceeded
	}
	if txn.Status == status {
		return
	}
	txn.Status = status
	if !succeeded {
		txn.FailureCode = event.Status
	}
	if err := s.payments.Update(txn); err != nil {
		log.Errorf("[Lifecycle] Failed to update transaction %d from webhook: %v", txn.ID, err)
	}
}

// syncRemoteStatus maps a provider-side subscription status onto ours.
// Unknown provider statuses leave local state untouched.
func (s *Service) syncRemoteStatus(event *gateway.Event) error {
	sub := s.subscriptionForEvent(event)
	if sub == nil {
		return nil
	}

	var status string
	switch event.Status {
	case "active":
		status = models.SubscriptionStatusActive
	case "past_due", "halted":
		status = models.SubscriptionStatusPastDue
	case "unpaid":
		status = models.SubscriptionStatusUnpaid
	case "canceled", "cancelled":
		status = models.SubscriptionStatusCanceled
	default:
		return nil
	}
	if sub.Status == status || sub.IsTerminal() {
		return nil
	}

	sub.Status = status
	if err := s.repo.Update(sub); err != nil {
		return err
	}
	log.Infof("[Lifecycle] Subscription %d synced to %s from %s webhook", sub.ID, status, event.Gateway)
	return nil
}

// applyRemoteDeletion mirrors a provider-side cancellation. No cancel reason
// is recorded; the provider does not tell us why.
func (s *Service) applyRemoteDeletion(event *gateway.Event) error {
	sub := s.subscriptionForEvent(event)
	if sub == nil || sub.Status == models.SubscriptionStatusCanceled {
		return nil
	}

	now := time.Now()
	sub.Status = models.SubscriptionStatusCanceled
	sub.CanceledAt = &now
	if err := s.repo.Update(sub); err != nil {
		return err
	}
	if s.dunning != nil {
		if err := s.dunning.StopCampaigns(sub.ID); err != nil {
			log.Warnf("[Lifecycle] Failed to stop dunning for remotely canceled subscription %d: %v", sub.ID, err)
		}
	}
	log.Infof("[Lifecycle] Subscription %d canceled via %s webhook", sub.ID, event.Gateway)
	return nil
}

func (s *Service) subscriptionForEvent(event *gateway.Event) *models.Subscription {
	if event.GatewaySubscriptionID != "" {
		if sub, err := s.repo.GetByGatewayRef(event.Gateway, event.GatewaySubscriptionID); err == nil {
			return sub
		}
	}
	if event.GatewayPaymentID != "" {
		if txn, err := s.payments.GetByGatewayPaymentID(event.Gateway, event.GatewayPaymentID); err == nil && txn.SubscriptionID != nil {
			if sub, err := s.repo.GetByID(*txn.SubscriptionID); err == nil {
				return sub
			}
		}
	}
	return nil
}
