package dunning

import (
	"errors"
	"fmt"
	"time"

	"github.com/campushq/campusbill/app/models"
	"github.com/campushq/campusbill/internal/pkg/mail"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// SubscriptionActions is the slice of the lifecycle manager the engine needs
// for its suspend and cancel escalation steps.
type SubscriptionActions interface {
	Suspend(subscriptionID uint) error
	CancelForNonPayment(subscriptionID uint) error
}

// Notifier delivers payment-overdue reminders. Split out so tests can stub
// delivery.
type Notifier interface {
	NotifyOverdue(subscriptionID uint, rule models.DunningRule) error
}

// Engine runs escalating dunning campaigns against past-due subscriptions.
// Step offsets are measured from campaign start, not from the previous step.
type Engine struct {
	repo          Repository
	subscriptions SubscriptionActions
	notifier      Notifier
}

func NewEngine(db *gorm.DB, subscriptions SubscriptionActions, notifier Notifier) *Engine {
	if notifier == nil {
		notifier = &mailNotifier{db: db}
	}
	return &Engine{
		repo:          NewRepository(db),
		subscriptions: subscriptions,
		notifier:      notifier,
	}
}

// StartCampaign opens a dunning campaign for a subscription. Idempotent: if
// an active campaign already exists, no second one is created.
func (e *Engine) StartCampaign(subscriptionID uint) error {
	if _, err := e.repo.GetActiveCampaign(subscriptionID); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	rules, err := e.repo.ActiveRules()
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		log.Warnf("[Dunning] No active rules configured, subscription %d gets no campaign", subscriptionID)
		return nil
	}

	now := time.Now()
	firstAction := now.AddDate(0, 0, rules[0].TriggerDays)
	campaign := &models.DunningCampaign{
		SubscriptionID: subscriptionID,
		Status:         models.DunningCampaignStatusActive,
		CurrentStep:    0,
		TotalSteps:     len(rules),
		NextActionAt:   &firstAction,
		StartedAt:      now,
	}
	if err := e.repo.CreateCampaign(campaign); err != nil {
		return err
	}
	log.Infof("[Dunning] Started campaign %d for subscription %d (%d steps, first action %s)",
		campaign.ID, subscriptionID, len(rules), firstAction.Format(time.RFC3339))
	return nil
}

// ProcessDueCampaigns executes the pending step of every due campaign. Each
// campaign is processed independently; one failure never aborts the batch.
func (e *Engine) ProcessDueCampaigns(now time.Time) (int, error) {
	due, err := e.repo.DueCampaigns(now)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range due {
		campaign := due[i]
		if err := e.processCampaign(&campaign, now); err != nil {
			log.Errorf("[Dunning] Campaign %d failed: %v", campaign.ID, err)
			continue
		}
		processed++
	}
	if processed > 0 {
		log.Infof("[Dunning] Processed %d of %d due campaigns", processed, len(due))
	}
	return processed, nil
}

func (e *Engine) processCampaign(campaign *models.DunningCampaign, now time.Time) error {
	rules, err := e.repo.ActiveRules()
	if err != nil {
		return err
	}
	if campaign.CurrentStep >= len(rules) {
		return e.completeCampaign(campaign, now)
	}
	rule := rules[campaign.CurrentStep]

	if err := e.executeAction(campaign, rule); err != nil {
		switch rule.Action {
		case models.DunningActionSuspend, models.DunningActionCancel:
			// These have real-world side effects that must not be skipped.
			// Leave the step in place; the next tick retries it.
			return fmt.Errorf("step %d (%s) failed, will retry: %w", campaign.CurrentStep, rule.Action, err)
		default:
			log.Warnf("[Dunning] Campaign %d step %d (%s) notification failed, advancing anyway: %v",
				campaign.ID, campaign.CurrentStep, rule.Action, err)
		}
	}

	campaign.CurrentStep++
	campaign.TotalSteps = len(rules)
	if campaign.CurrentStep >= len(rules) {
		return e.completeCampaign(campaign, now)
	}

	// Offsets are relative to campaign start.
	next := campaign.StartedAt.AddDate(0, 0, rules[campaign.CurrentStep].TriggerDays)
	campaign.NextActionAt = &next
	return e.repo.UpdateCampaign(campaign)
}

func (e *Engine) completeCampaign(campaign *models.DunningCampaign, now time.Time) error {
	campaign.Status = models.DunningCampaignStatusCompleted
	campaign.CompletedAt = &now
	campaign.NextActionAt = nil
	if err := e.repo.UpdateCampaign(campaign); err != nil {
		return err
	}
	log.Infof("[Dunning] Campaign %d completed after step %d", campaign.ID, campaign.CurrentStep)
	return nil
}

func (e *Engine) executeAction(campaign *models.DunningCampaign, rule models.DunningRule) error {
	switch rule.Action {
	case models.DunningActionEmail, models.DunningActionSMS:
		return e.notifier.NotifyOverdue(campaign.SubscriptionID, rule)
	case models.DunningActionSuspend:
		if err := e.subscriptions.Suspend(campaign.SubscriptionID); err != nil {
			return err
		}
		if err := e.notifier.NotifyOverdue(campaign.SubscriptionID, rule); err != nil {
			log.Warnf("[Dunning] Suspension notice for subscription %d failed: %v", campaign.SubscriptionID, err)
		}
		return nil
	case models.DunningActionCancel:
		if err := e.subscriptions.CancelForNonPayment(campaign.SubscriptionID); err != nil {
			return err
		}
		if err := e.notifier.NotifyOverdue(campaign.SubscriptionID, rule); err != nil {
			log.Warnf("[Dunning] Cancellation notice for subscription %d failed: %v", campaign.SubscriptionID, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown dunning action %q", rule.Action)
	}
}

// StopCampaigns completes all active campaigns for a subscription without
// running the remaining escalation steps. Idempotent: stopping twice leaves
// the same state and returns no error.
func (e *Engine) StopCampaigns(subscriptionID uint) error {
	campaigns, err := e.repo.ActiveCampaignsForSubscription(subscriptionID)
	if err != nil {
		return err
	}
	now := time.Now()
	for i := range campaigns {
		campaign := campaigns[i]
		campaign.Status = models.DunningCampaignStatusCompleted
		campaign.CompletedAt = &now
		campaign.NextActionAt = nil
		if err := e.repo.UpdateCampaign(&campaign); err != nil {
			return err
		}
		log.Infof("[Dunning] Campaign %d stopped, payment recovered", campaign.ID)
	}
	return nil
}

// mailNotifier sends dunning reminders over SMTP. SMS steps fall back to
// email until an SMS provider is wired up.
type mailNotifier struct {
	db *gorm.DB
}

func (n *mailNotifier) NotifyOverdue(subscriptionID uint, rule models.DunningRule) error {
	var sub models.Subscription
	if err := n.db.First(&sub, subscriptionID).Error; err != nil {
		return err
	}
	var tenant models.Tenant
	if err := n.db.First(&tenant, sub.TenantID).Error; err != nil {
		return err
	}

	if rule.Action == models.DunningActionSMS {
		log.Warnf("[Dunning] SMS provider not configured, sending email to %s instead", tenant.Email)
	}

	subject, body := overdueMessage(&tenant, &sub, rule)
	return mail.SendBillingNotice(tenant.Email, subject, body)
}

func overdueMessage(tenant *models.Tenant, sub *models.Subscription, rule models.DunningRule) (string, string) {
	switch rule.Action {
	case models.DunningActionSuspend:
		return "Your subscription has been suspended",
			fmt.Sprintf("<p>Hello %s,</p><p>Your subscription for plan <b>%s</b> has been suspended because of an outstanding payment. Settle the open invoice to restore access.</p>", tenant.Name, sub.PlanID)
	case models.DunningActionCancel:
		return "Your subscription has been canceled",
			fmt.Sprintf("<p>Hello %s,</p><p>Your subscription for plan <b>%s</b> has been canceled after repeated failed payment attempts.</p>", tenant.Name, sub.PlanID)
	default:
		return "Payment overdue",
			fmt.Sprintf("<p>Hello %s,</p><p>The payment for your plan <b>%s</b> is overdue. Please update your payment details to avoid service interruption.</p>", tenant.Name, sub.PlanID)
	}
}
