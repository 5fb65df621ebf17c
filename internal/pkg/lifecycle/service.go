package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/campushq/campusbill/app/models"
	"github.com/campushq/campusbill/app/repository"
	"github.com/campushq/campusbill/internal/pkg/apperr"
	"github.com/campushq/campusbill/internal/pkg/catalog"
	"github.com/campushq/campusbill/internal/pkg/gateway"
	"github.com/campushq/campusbill/internal/pkg/pricing"
	"github.com/campushq/campusbill/internal/pkg/usage"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// DunningHooks is the slice of the dunning engine the lifecycle manager
// drives: start a campaign on payment failure, stop on payment success.
// Wired after construction to break the package cycle.
type DunningHooks interface {
	StartCampaign(subscriptionID uint) error
	StopCampaigns(subscriptionID uint) error
}

// PlanCatalog is the slice of the plan catalog the lifecycle manager reads.
type PlanCatalog interface {
	Get(id string) (*models.Plan, error)
	GetActive(id string) (*models.Plan, error)
}

// UsageReader provides the usage snapshot consulted before plan changes.
type UsageReader interface {
	CurrentUsage(tenantID uint) (*usage.Snapshot, error)
}

// TenantReader resolves the tenant record gateway provisioning and payments
// need.
type TenantReader interface {
	GetByID(id uint) (*models.Tenant, error)
}

// Service owns subscription state and orchestrates creation, change,
// cancellation and renewal. The local store is the authoritative record of
// subscription existence; gateway calls during creation are best effort.
type Service struct {
	db       *gorm.DB
	repo     SubscriptionRepository
	payments PaymentRepository
	tenants  TenantReader
	catalog  PlanCatalog
	registry *gateway.Registry
	usage    UsageReader
	dunning  DunningHooks
}

func NewService(db *gorm.DB, cat *catalog.Service, registry *gateway.Registry, usageSvc *usage.Service) *Service {
	return &Service{
		db:       db,
		repo:     NewSubscriptionRepository(db),
		payments: NewPaymentRepository(db),
		tenants:  repository.NewRepositories(db).Tenant,
		catalog:  cat,
		registry: registry,
		usage:    usageSvc,
	}
}

// SetDunning wires the dunning engine. Must be called before payment
// failures are recorded.
func (s *Service) SetDunning(d DunningHooks) { s.dunning = d }

// Repo exposes the subscription repository for read-only callers.
func (s *Service) Repo() SubscriptionRepository { return s.repo }

// CreateParams describes a new subscription request.
type CreateParams struct {
	TenantID        uint
	SchoolID        uint
	PlanID          string
	BillingCycle    string
	PaymentMethodID string
	// TrialDays overrides the plan's trial length when non-nil.
	TrialDays *int
}

// Create validates the plan and limits, opens an optional trial window,
// attempts gateway provisioning and persists the subscription. A gateway
// failure never blocks local creation; reconciliation happens on the next
// webhook or renewal tick. The active_key unique index is the real guard
// against concurrent creates for the same school.
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.Subscription, error) {
	plan, err := s.catalog.GetActive(params.PlanID)
	if err != nil {
		return nil, err
	}
	cycle := params.BillingCycle
	if cycle == "" {
		cycle = models.BillingCycleMonthly
	}
	if _, err := catalog.CycleMonths(cycle); err != nil {
		return nil, apperr.Validation("invalid billing cycle %q", cycle)
	}

	snapshot, err := s.usage.CurrentUsage(params.TenantID)
	if err != nil {
		return nil, apperr.Internal("load usage snapshot", err)
	}
	if check := pricing.CheckLimits(plan.Limits, snapshot.Metrics); !check.WithinLimits {
		return nil, apperr.Validation("plan limits exceeded: %s", strings.Join(check.Violations, "; "))
	}

	// Advisory check; the unique index below is the enforcement point.
	if _, err := s.repo.GetActiveForSchool(params.TenantID, params.SchoolID); err == nil {
		return nil, apperr.Conflict("school %d already has an active subscription", params.SchoolID)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal("check existing subscription", err)
	}

	now := time.Now()
	periodStart, periodEnd, err := catalog.PeriodBounds(now, cycle)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}

	sub := &models.Subscription{
		TenantID:           params.TenantID,
		SchoolID:           params.SchoolID,
		PlanID:             plan.ID,
		Status:             models.SubscriptionStatusActive,
		BillingCycle:       cycle,
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
	}

	trialDays := plan.TrialDays
	if params.TrialDays != nil {
		trialDays = *params.TrialDays
	}
	if trialDays > 0 {
		trialEnd := now.AddDate(0, 0, trialDays)
		sub.Status = models.SubscriptionStatusTrial
		sub.TrialStart = &now
		sub.TrialEnd = &trialEnd
	}

	s.provisionGateway(ctx, sub, plan, params.PaymentMethodID)

	if err := s.repo.Create(sub); err != nil {
		if IsDuplicateKey(err) {
			return nil, apperr.Conflict("school %d already has an active subscription", params.SchoolID)
		}
		return nil, apperr.Internal("create subscription", err)
	}
	log.Infof("[Lifecycle] Created subscription %d (tenant %d, school %d, plan %s, status %s)",
		sub.ID, sub.TenantID, sub.SchoolID, sub.PlanID, sub.Status)
	return sub, nil
}

// provisionGateway picks the highest-priority supported gateway for the
// tenant and creates the remote customer and, when a price ref exists, the
// remote subscription. Failures fall through to the next supported gateway;
// running out of gateways leaves the subscription local-only.
func (s *Service) provisionGateway(ctx context.Context, sub *models.Subscription, plan *models.Plan, paymentMethodID string) {
	tenant, err := s.tenants.GetByID(sub.TenantID)
	if err != nil {
		log.Warnf("[Lifecycle] Gateway provisioning skipped, tenant %d not found: %v", sub.TenantID, err)
		return
	}

	names := s.registry.DetermineSupportedGateways(tenant.Currency, tenant.Country)
	if len(names) == 0 {
		log.Warnf("[Lifecycle] No gateway supports currency=%s country=%s, subscription stays local", tenant.Currency, tenant.Country)
		return
	}

	trialDays := 0
	if sub.TrialEnd != nil {
		trialDays = int(time.Until(*sub.TrialEnd).Hours() / 24)
	}

	for _, name := range names {
		adapter, err := s.registry.Adapter(name)
		if err != nil {
			continue
		}

		var customer *gateway.Customer
		err = gateway.WithRetry(ctx, name, "create_customer", func() error {
			var cErr error
			customer, cErr = adapter.CreateCustomer(ctx, gateway.CustomerParams{
				Email:    tenant.Email,
				Name:     tenant.Name,
				TenantID: tenant.ID,
			})
			return cErr
		})
		if err != nil {
			log.Warnf("[Lifecycle] %s customer creation failed, trying next gateway: %v", name, err)
			continue
		}

		sub.Gateway = name
		sub.GatewayCustomerID = customer.ID

		priceRef := plan.GatewayPriceRef(name)
		if priceRef == "" {
			log.Infof("[Lifecycle] Plan %s has no %s price ref, subscription billed locally", plan.ID, name)
			return
		}

		var remote *gateway.RemoteSubscription
		err = gateway.WithRetry(ctx, name, "create_subscription", func() error {
			var sErr error
			remote, sErr = adapter.CreateSubscription(ctx, gateway.SubscriptionParams{
				CustomerID: customer.ID,
				PriceRef:   priceRef,
				TrialDays:  trialDays,
			})
			return sErr
		})
		if err != nil {
			var gwErr *gateway.Error
			if errors.As(err, &gwErr) && gwErr.IsUnsupported() {
				// Capability gap, not a failure. Renewals run locally.
				log.Infof("[Lifecycle] %s has no native subscriptions, billing locally", name)
				return
			}
			log.Warnf("[Lifecycle] %s subscription creation failed, record stays local: %v", name, err)
			return
		}
		sub.GatewaySubscriptionID = remote.ID
		return
	}
	log.Warnf("[Lifecycle] All supported gateways failed for tenant %d, subscription stays local", sub.TenantID)
}

// ChangePlan switches a subscription to a new plan mid-period. The returned
// proration is computed from remaining vs total days in the current period;
// with prorate=false the gateway is told not to create proration invoices
// but the local breakdown is still returned for display.
func (s *Service) ChangePlan(ctx context.Context, subscriptionID uint, newPlanID string, prorate bool) (*models.Subscription, *pricing.ProrationResult, error) {
	sub, err := s.getMutable(subscriptionID)
	if err != nil {
		return nil, nil, err
	}
	if sub.PlanID == newPlanID {
		return nil, nil, apperr.Validation("subscription is already on plan %q", newPlanID)
	}

	oldPlan, err := s.catalog.Get(sub.PlanID)
	if err != nil {
		return nil, nil, err
	}
	newPlan, err := s.catalog.GetActive(newPlanID)
	if err != nil {
		return nil, nil, err
	}

	snapshot, err := s.usage.CurrentUsage(sub.TenantID)
	if err != nil {
		return nil, nil, apperr.Internal("load usage snapshot", err)
	}
	if check := pricing.CheckLimits(newPlan.Limits, snapshot.Metrics); !check.WithinLimits {
		return nil, nil, apperr.Validation("plan limits exceeded: %s", strings.Join(check.Violations, "; "))
	}

	proration := pricing.CalculateProration(
		cycleAmount(oldPlan.Price, sub.BillingCycle),
		cycleAmount(newPlan.Price, sub.BillingCycle),
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, time.Now(),
	)

	s.pushPlanChange(ctx, sub, newPlan, prorate)

	sub.PlanID = newPlan.ID
	if err := s.repo.Update(sub); err != nil {
		return nil, nil, apperr.Internal("update subscription", err)
	}
	log.Infof("[Lifecycle] Subscription %d moved %s -> %s (proration %d)", sub.ID, oldPlan.ID, newPlan.ID, proration.Amount)
	return sub, &proration, nil
}

// pushPlanChange mirrors the plan change to the gateway when a remote
// subscription exists. The local record stays authoritative; failures are
// logged and reconciled later.
func (s *Service) pushPlanChange(ctx context.Context, sub *models.Subscription, newPlan *models.Plan, prorate bool) {
	if sub.Gateway == "" || sub.GatewaySubscriptionID == "" {
		return
	}
	adapter, err := s.registry.Adapter(sub.Gateway)
	if err != nil {
		log.Warnf("[Lifecycle] Gateway %s unavailable for plan change on subscription %d: %v", sub.Gateway, sub.ID, err)
		return
	}
	priceRef := newPlan.GatewayPriceRef(sub.Gateway)
	if priceRef == "" {
		log.Warnf("[Lifecycle] Plan %s has no %s price ref, remote subscription left unchanged", newPlan.ID, sub.Gateway)
		return
	}
	behavior := gateway.ProrationBehaviorCreate
	if !prorate {
		behavior = gateway.ProrationBehaviorNone
	}
	err = gateway.WithRetry(ctx, sub.Gateway, "update_subscription", func() error {
		_, uErr := adapter.UpdateSubscription(ctx, sub.GatewaySubscriptionID, gateway.UpdateSubscriptionParams{
			PriceRef:          priceRef,
			ProrationBehavior: behavior,
		})
		return uErr
	})
	if err != nil {
		log.Warnf("[Lifecycle] Gateway plan change failed for subscription %d: %v", sub.ID, err)
	}
}

// ChangeBillingCycle recomputes the current period end from the existing
// period start under the new cycle length.
func (s *Service) ChangeBillingCycle(subscriptionID uint, newCycle string) (*models.Subscription, error) {
	sub, err := s.getMutable(subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.BillingCycle == newCycle {
		return sub, nil
	}
	_, newEnd, err := catalog.PeriodBounds(sub.CurrentPeriodStart, newCycle)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	sub.BillingCycle = newCycle
	sub.CurrentPeriodEnd = newEnd
	if err := s.repo.Update(sub); err != nil {
		return nil, apperr.Internal("update subscription", err)
	}
	log.Infof("[Lifecycle] Subscription %d billing cycle changed to %s, period end %s", sub.ID, newCycle, newEnd.Format(time.RFC3339))
	return sub, nil
}

// Cancel ends a subscription. Immediate cancellation truncates the current
// period to now; otherwise only the flag is set and the next renewal tick
// finalizes it. Canceling an already-canceled subscription is a conflict,
// not a no-op.
func (s *Service) Cancel(ctx context.Context, subscriptionID uint, immediately bool) (*models.Subscription, error) {
	sub, err := s.repo.GetByID(subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("subscription %d not found", subscriptionID)
		}
		return nil, apperr.Internal("load subscription", err)
	}
	if sub.Status == models.SubscriptionStatusCanceled {
		return nil, apperr.Conflict("subscription %d is already canceled", subscriptionID)
	}

	s.cancelRemote(ctx, sub, !immediately)

	now := time.Now()
	if immediately {
		sub.Status = models.SubscriptionStatusCanceled
		sub.CanceledAt = &now
		sub.CurrentPeriodEnd = now
	} else {
		sub.CancelAtPeriodEnd = true
	}
	if err := s.repo.Update(sub); err != nil {
		return nil, apperr.Internal("update subscription", err)
	}

	if immediately && s.dunning != nil {
		if err := s.dunning.StopCampaigns(sub.ID); err != nil {
			log.Warnf("[Lifecycle] Failed to stop dunning for canceled subscription %d: %v", sub.ID, err)
		}
	}
	log.Infof("[Lifecycle] Subscription %d canceled (immediately=%t)", sub.ID, immediately)
	return sub, nil
}

func (s *Service) cancelRemote(ctx context.Context, sub *models.Subscription, atPeriodEnd bool) {
	if sub.Gateway == "" || sub.GatewaySubscriptionID == "" {
		return
	}
	adapter, err := s.registry.Adapter(sub.Gateway)
	if err != nil {
		log.Warnf("[Lifecycle] Gateway %s unavailable for cancel on subscription %d: %v", sub.Gateway, sub.ID, err)
		return
	}
	err = gateway.WithRetry(ctx, sub.Gateway, "cancel_subscription", func() error {
		_, cErr := adapter.CancelSubscription(ctx, sub.GatewaySubscriptionID, atPeriodEnd)
		return cErr
	})
	if err != nil {
		log.Warnf("[Lifecycle] Gateway cancel failed for subscription %d: %v", sub.ID, err)
	}
}

// ProcessRenewals advances every due subscription by one cycle and finalizes
// period-end cancellations. Each row is processed independently; one failure
// never halts the batch. Re-running within the same window is a no-op for
// rows already advanced because their period end moved into the future.
func (s *Service) ProcessRenewals(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(24 * time.Hour)
	due, err := s.repo.DueForRenewal(cutoff)
	if err != nil {
		return 0, err
	}

	renewed := 0
	for i := range due {
		sub := due[i]
		if err := s.renewOne(ctx, &sub, now); err != nil {
			log.Errorf("[Lifecycle] Renewal failed for subscription %d: %v", sub.ID, err)
			continue
		}
		renewed++
	}

	if err := s.finalizePendingCancellations(now); err != nil {
		log.Errorf("[Lifecycle] Finalizing cancellations failed: %v", err)
	}

	if renewed > 0 {
		log.Infof("[Lifecycle] Renewed %d of %d due subscriptions", renewed, len(due))
	}
	return renewed, nil
}

func (s *Service) renewOne(ctx context.Context, sub *models.Subscription, now time.Time) error {
	// Guard against double-advancing when the batch overlaps a previous run.
	if sub.CurrentPeriodEnd.After(now.Add(24 * time.Hour)) {
		return nil
	}

	nextStart := catalog.NextPeriodStart(sub.CurrentPeriodEnd)
	newStart, newEnd, err := catalog.PeriodBounds(nextStart, sub.BillingCycle)
	if err != nil {
		return err
	}

	wasTrial := sub.Status == models.SubscriptionStatusTrial
	sub.Status = models.SubscriptionStatusActive
	sub.CurrentPeriodStart = newStart
	sub.CurrentPeriodEnd = newEnd
	if err := s.repo.Update(sub); err != nil {
		return err
	}
	if wasTrial {
		log.Infof("[Lifecycle] Subscription %d converted from trial on renewal", sub.ID)
	}

	// Gateways without native subscriptions are billed by us each cycle.
	if sub.Gateway != "" && sub.GatewaySubscriptionID == "" {
		if err := s.chargeRenewal(ctx, sub); err != nil {
			log.Warnf("[Lifecycle] Renewal charge failed for subscription %d: %v", sub.ID, err)
		}
	}
	return nil
}

// chargeRenewal opens a payment intent for one cycle on gateways where the
// platform runs the billing loop itself.
func (s *Service) chargeRenewal(ctx context.Context, sub *models.Subscription) error {
	plan, err := s.catalog.Get(sub.PlanID)
	if err != nil {
		return err
	}
	_, err = s.CreatePayment(ctx, PaymentParams{
		TenantID:       sub.TenantID,
		SubscriptionID: &sub.ID,
		Amount:         cycleAmount(plan.Price, sub.BillingCycle),
		Currency:       plan.Currency,
		Description:    "Subscription renewal " + sub.CurrentPeriodStart.Format("2006-01-02"),
		IdempotencyKey: renewalIdempotencyKey(sub),
	})
	return err
}

func (s *Service) finalizePendingCancellations(now time.Time) error {
	pending, err := s.repo.PendingCancellations(now)
	if err != nil {
		return err
	}
	for i := range pending {
		sub := pending[i]
		sub.Status = models.SubscriptionStatusCanceled
		sub.CanceledAt = &now
		if err := s.repo.Update(&sub); err != nil {
			log.Errorf("[Lifecycle] Failed to finalize cancellation of subscription %d: %v", sub.ID, err)
			continue
		}
		log.Infof("[Lifecycle] Subscription %d canceled at period end", sub.ID)
	}
	return nil
}

// ProcessTrialExpirations converts expired trials to active. Conversion is
// unconditional; a missing payment reference only logs a warning, giving the
// tenant a grace period instead of cutting them off.
func (s *Service) ProcessTrialExpirations(now time.Time) (int, error) {
	expired, err := s.repo.ExpiredTrials(now)
	if err != nil {
		return 0, err
	}

	converted := 0
	for i := range expired {
		sub := expired[i]
		if sub.GatewayCustomerID == "" {
			log.Warnf("[Lifecycle] Subscription %d trial expired without a payment method on file", sub.ID)
		}
		sub.Status = models.SubscriptionStatusActive
		if err := s.repo.Update(&sub); err != nil {
			log.Errorf("[Lifecycle] Trial conversion failed for subscription %d: %v", sub.ID, err)
			continue
		}
		converted++
	}
	if converted > 0 {
		log.Infof("[Lifecycle] Converted %d expired trials", converted)
	}
	return converted, nil
}

// RecordPaymentFailure moves a subscription to past_due and starts dunning.
func (s *Service) RecordPaymentFailure(subscriptionID uint, failureCode, failureMessage string) error {
	sub, err := s.repo.GetByID(subscriptionID)
	if err != nil {
		return err
	}
	if sub.IsTerminal() {
		return nil
	}
	if sub.Status != models.SubscriptionStatusSuspended {
		sub.Status = models.SubscriptionStatusPastDue
		if err := s.repo.Update(sub); err != nil {
			return err
		}
	}
	log.Warnf("[Lifecycle] Payment failed for subscription %d (%s: %s)", sub.ID, failureCode, failureMessage)

	if s.dunning != nil {
		if err := s.dunning.StartCampaign(sub.ID); err != nil {
			log.Errorf("[Lifecycle] Failed to start dunning for subscription %d: %v", sub.ID, err)
		}
	}
	return nil
}

// RecordPaymentSuccess restores a subscription to active and stops dunning.
func (s *Service) RecordPaymentSuccess(subscriptionID uint) error {
	sub, err := s.repo.GetByID(subscriptionID)
	if err != nil {
		return err
	}
	if sub.IsTerminal() {
		return nil
	}
	if sub.Status != models.SubscriptionStatusActive && sub.Status != models.SubscriptionStatusTrial {
		sub.Status = models.SubscriptionStatusActive
		if err := s.repo.Update(sub); err != nil {
			return err
		}
	}

	if s.dunning != nil {
		if err := s.dunning.StopCampaigns(sub.ID); err != nil {
			log.Errorf("[Lifecycle] Failed to stop dunning for subscription %d: %v", sub.ID, err)
		}
	}
	log.Infof("[Lifecycle] Payment recovered for subscription %d", sub.ID)
	return nil
}

// Suspend is driven by the dunning engine's suspend escalation step.
func (s *Service) Suspend(subscriptionID uint) error {
	sub, err := s.repo.GetByID(subscriptionID)
	if err != nil {
		return err
	}
	if sub.IsTerminal() || sub.Status == models.SubscriptionStatusSuspended {
		return nil
	}
	sub.Status = models.SubscriptionStatusSuspended
	if err := s.repo.Update(sub); err != nil {
		return err
	}
	log.Warnf("[Lifecycle] Subscription %d suspended for non-payment", sub.ID)
	return nil
}

// CancelForNonPayment is driven by the dunning engine's final escalation
// step.
func (s *Service) CancelForNonPayment(subscriptionID uint) error {
	sub, err := s.repo.GetByID(subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status == models.SubscriptionStatusCanceled {
		return nil
	}

	s.cancelRemote(context.Background(), sub, false)

	now := time.Now()
	sub.Status = models.SubscriptionStatusCanceled
	sub.CancelReason = models.CancelReasonNonPayment
	sub.CanceledAt = &now
	sub.CurrentPeriodEnd = now
	if err := s.repo.Update(sub); err != nil {
		return err
	}
	log.Warnf("[Lifecycle] Subscription %d canceled for non-payment", sub.ID)
	return nil
}

// getMutable loads a subscription and rejects terminal rows.
func (s *Service) getMutable(subscriptionID uint) (*models.Subscription, error) {
	sub, err := s.repo.GetByID(subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("subscription %d not found", subscriptionID)
		}
		return nil, apperr.Internal("load subscription", err)
	}
	if sub.IsTerminal() {
		return nil, apperr.Conflict("subscription %d is %s", subscriptionID, sub.Status)
	}
	return sub, nil
}

// cycleAmount scales a monthly plan price to the billing cycle length.
func cycleAmount(monthlyPrice int64, cycle string) int64 {
	months, err := catalog.CycleMonths(cycle)
	if err != nil {
		return monthlyPrice
	}
	return monthlyPrice * int64(months)
}
