package controllers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/campushq/campusbill/app/models"
	"github.com/campushq/campusbill/internal/pkg/apperr"
	"github.com/campushq/campusbill/internal/pkg/catalog"
	"github.com/campushq/campusbill/internal/pkg/gateway"
	"github.com/campushq/campusbill/internal/pkg/lifecycle"
	"github.com/campushq/campusbill/internal/pkg/pricing"
	"github.com/campushq/campusbill/internal/pkg/tenantcontext"
	"github.com/campushq/campusbill/internal/pkg/usage"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	billingLifecycle *lifecycle.Service
	billingCatalog   *catalog.Service
	billingUsage     *usage.Service
	billingRegistry  *gateway.Registry

	validate = validator.New()
)

// SetupBilling wires the shared billing services into the controller layer.
// Must run before the router installs the billing routes.
func SetupBilling(l *lifecycle.Service, c *catalog.Service, u *usage.Service, r *gateway.Registry) {
	billingLifecycle = l
	billingCatalog = c
	billingUsage = u
	billingRegistry = r
}

const gatewayCallTimeout = 30 * time.Second

// SubscribeRequest is the body of POST /billing/subscribe.
type SubscribeRequest struct {
	PlanID          string `json:"plan_id" validate:"required"`
	SchoolID        uint   `json:"school_id" validate:"required"`
	BillingCycle    string `json:"billing_cycle" validate:"omitempty,oneof=monthly quarterly yearly"`
	PaymentMethodID string `json:"payment_method_id"`
	TrialDays       *int   `json:"trial_days" validate:"omitempty,min=0,max=90"`
}

// UpdateSubscriptionRequest is the body of PUT /billing/subscription/:id.
// Plan and billing-cycle changes may be combined in one call.
type UpdateSubscriptionRequest struct {
	PlanID       string `json:"plan_id"`
	BillingCycle string `json:"billing_cycle" validate:"omitempty,oneof=monthly quarterly yearly"`
	Prorate      *bool  `json:"prorate"`
}

// PaymentRequest is the body of POST /billing/payment. Amount is a decimal
// string in major units ("49.99"); conversion to minor units happens here at
// the edge, before any service sees the value.
type PaymentRequest struct {
	Amount          string `json:"amount" validate:"required"`
	Currency        string `json:"currency" validate:"omitempty,len=3"`
	SubscriptionID  *uint  `json:"subscription_id"`
	PaymentMethodID string `json:"payment_method_id"`
	Description     string `json:"description" validate:"max=255"`
	IdempotencyKey  string `json:"idempotency_key" validate:"max=64"`
}

// HandleListPlans returns the active plan catalog.
func HandleListPlans(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"plans": billingCatalog.List(true)})
}

// HandleGetPlan returns one plan by ID.
func HandleGetPlan(c *fiber.Ctx) error {
	plan, err := billingCatalog.Get(c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(plan)
}

// HandleSubscribe creates a subscription for the authenticated tenant.
func HandleSubscribe(c *fiber.Ctx) error {
	tenant := tenantcontext.Get(c)

	var req SubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, apperr.Validation("invalid request body"))
	}
	if err := validate.Struct(&req); err != nil {
		return errorResponse(c, apperr.Validation("%v", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
	defer cancel()

	sub, err := billingLifecycle.Create(ctx, lifecycle.CreateParams{
		TenantID:        tenant.TenantID,
		SchoolID:        req.SchoolID,
		PlanID:          req.PlanID,
		BillingCycle:    req.BillingCycle,
		PaymentMethodID: req.PaymentMethodID,
		TrialDays:       req.TrialDays,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

// HandleUpdateSubscription changes the plan and/or billing cycle of a
// subscription. Plan changes include a proration breakdown in the response.
func HandleUpdateSubscription(c *fiber.Ctx) error {
	tenant := tenantcontext.Get(c)
	subID, err := subscriptionIDParam(c)
	if err != nil {
		return errorResponse(c, err)
	}

	var req UpdateSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, apperr.Validation("invalid request body"))
	}
	if err := validate.Struct(&req); err != nil {
		return errorResponse(c, apperr.Validation("%v", err))
	}
	if req.PlanID == "" && req.BillingCycle == "" {
		return errorResponse(c, apperr.Validation("nothing to update: provide plan_id and/or billing_cycle"))
	}

	if err := ensureOwnership(c, tenant.TenantID, subID); err != nil {
		return errorResponse(c, err)
	}

	var (
		sub       *models.Subscription
		proration *pricing.ProrationResult
	)

	if req.BillingCycle != "" {
		if sub, err = billingLifecycle.ChangeBillingCycle(subID, req.BillingCycle); err != nil {
			return errorResponse(c, err)
		}
	}
	if req.PlanID != "" {
		prorate := true
		if req.Prorate != nil {
			prorate = *req.Prorate
		}
		ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
		defer cancel()
		if sub, proration, err = billingLifecycle.ChangePlan(ctx, subID, req.PlanID, prorate); err != nil {
			return errorResponse(c, err)
		}
	}

	resp := fiber.Map{"subscription": sub}
	if proration != nil {
		resp["proration"] = proration
	}
	return c.JSON(resp)
}

// HandleGetSubscription returns the tenant's subscriptions, or the single
// active one for a school when school_id is given.
func HandleGetSubscription(c *fiber.Ctx) error {
	tenant := tenantcontext.Get(c)

	if schoolID := c.QueryInt("school_id"); schoolID > 0 {
		sub, err := billingLifecycle.Repo().GetActiveForSchool(tenant.TenantID, uint(schoolID))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errorResponse(c, apperr.NotFound("no active subscription for school %d", schoolID))
			}
			return errorResponse(c, apperr.Internal("load subscription", err))
		}
		return c.JSON(sub)
	}

	subs, err := billingLifecycle.Repo().ListByTenant(tenant.TenantID)
	if err != nil {
		return errorResponse(c, apperr.Internal("list subscriptions", err))
	}
	return c.JSON(fiber.Map{"subscriptions": subs})
}

// HandleCancelSubscription cancels a subscription, immediately or at period
// end (?immediately=true).
func HandleCancelSubscription(c *fiber.Ctx) error {
	tenant := tenantcontext.Get(c)
	subID, err := subscriptionIDParam(c)
	if err != nil {
		return errorResponse(c, err)
	}
	if err := ensureOwnership(c, tenant.TenantID, subID); err != nil {
		return errorResponse(c, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
	defer cancel()

	sub, err := billingLifecycle.Cancel(ctx, subID, c.QueryBool("immediately"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(sub)
}

// HandleGetUsage returns the tenant's current usage snapshot.
func HandleGetUsage(c *fiber.Ctx) error {
	tenant := tenantcontext.Get(c)
	snapshot, err := billingUsage.CurrentUsage(tenant.TenantID)
	if err != nil {
		return errorResponse(c, apperr.Internal("load usage", err))
	}
	return c.JSON(snapshot)
}

// HandleGetUsageLimits compares current usage against the tenant's plan
// limits and prices any overages.
func HandleGetUsageLimits(c *fiber.Ctx) error {
	tenant := tenantcontext.Get(c)

	snapshot, err := billingUsage.CurrentUsage(tenant.TenantID)
	if err != nil {
		return errorResponse(c, apperr.Internal("load usage", err))
	}

	subs, err := billingLifecycle.Repo().ListByTenant(tenant.TenantID)
	if err != nil {
		return errorResponse(c, apperr.Internal("list subscriptions", err))
	}
	var plan *models.Plan
	for i := range subs {
		if !subs[i].IsTerminal() {
			if p, err := billingCatalog.Get(subs[i].PlanID); err == nil {
				plan = p
				break
			}
		}
	}
	if plan == nil {
		return errorResponse(c, apperr.NotFound("tenant has no active subscription"))
	}

	check := pricing.CheckLimits(plan.Limits, snapshot.Metrics)
	overages := pricing.OverageItems(plan.Limits, snapshot.Metrics, nil)
	return c.JSON(fiber.Map{
		"plan_id":       plan.ID,
		"usage":         snapshot.Metrics,
		"limits":        plan.Limits,
		"within_limits": check.WithinLimits,
		"violations":    check.Violations,
		"overages":      overages,
	})
}

// HandlePayment charges the tenant through the best supported gateway.
func HandlePayment(c *fiber.Ctx) error {
	tenant := tenantcontext.Get(c)

	var req PaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, apperr.Validation("invalid request body"))
	}
	if err := validate.Struct(&req); err != nil {
		return errorResponse(c, apperr.Validation("%v", err))
	}

	minorUnits, err := majorToMinorUnits(req.Amount)
	if err != nil {
		return errorResponse(c, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), gatewayCallTimeout)
	defer cancel()

	txn, err := billingLifecycle.CreatePayment(ctx, lifecycle.PaymentParams{
		TenantID:        tenant.TenantID,
		SubscriptionID:  req.SubscriptionID,
		Amount:          minorUnits,
		Currency:        req.Currency,
		PaymentMethodID: req.PaymentMethodID,
		Description:     req.Description,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(txn)
}

// HandleListGateways reports which gateways can serve the tenant.
func HandleListGateways(c *fiber.Ctx) error {
	tenant := tenantcontext.Get(c)
	return c.JSON(fiber.Map{
		"gateways": billingRegistry.DetermineSupportedGateways(tenant.Currency, tenant.Country),
	})
}

// majorToMinorUnits converts a major-unit decimal string ("49.99") to minor
// units. Sub-minor precision is rejected rather than rounded silently.
func majorToMinorUnits(value string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, apperr.Validation("invalid amount %q", value)
	}
	minor := d.Mul(decimal.NewFromInt(100))
	if !minor.Equal(minor.Truncate(0)) {
		return 0, apperr.Validation("amount %q has more than two decimal places", value)
	}
	return minor.IntPart(), nil
}

func subscriptionIDParam(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid subscription id %q", c.Params("id"))
	}
	return uint(id), nil
}

// ensureOwnership rejects access to another tenant's subscription. The
// mismatch is reported as not-found so tenants cannot probe foreign IDs.
func ensureOwnership(c *fiber.Ctx, tenantID, subscriptionID uint) error {
	sub, err := billingLifecycle.Repo().GetByID(subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("subscription %d not found", subscriptionID)
		}
		return apperr.Internal("load subscription", err)
	}
	if sub.TenantID != tenantID {
		return apperr.NotFound("subscription %d not found", subscriptionID)
	}
	return nil
}

func errorResponse(c *fiber.Ctx, err error) error {
	status := apperr.HTTPStatus(err)
	body := fiber.Map{"error": errorSlug(status), "message": err.Error()}

	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Gateway != "" {
		body["gateway"] = ae.Gateway
		if ae.GatewayCode != "" {
			body["gateway_code"] = ae.GatewayCode
		}
	}
	return c.Status(status).JSON(body)
}

func errorSlug(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "validation_error"
	case fiber.StatusConflict:
		return "conflict"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusPaymentRequired:
		return "payment_failed"
	case fiber.StatusNotImplemented:
		return "unsupported_operation"
	default:
		return "internal_server_error"
	}
}
