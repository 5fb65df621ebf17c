package controllers

import (
	"strings"

	"github.com/campushq/campusbill/internal/pkg/lifecycle"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// HandleGatewayWebhook ingests provider webhooks on
// POST /billing/webhooks/:gateway. The raw body is persisted idempotently
// before processing; the signature is verified before any billing state
// mutates. Processing failures after a valid signature still return 200 so
// providers do not retry events we have already stored.
func HandleGatewayWebhook(c *fiber.Ctx) error {
	gatewayName := c.Params("gateway")
	adapter, err := billingRegistry.Adapter(gatewayName)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_gateway"})
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	headers := requestHeaders(c)

	signatureValid := adapter.VerifyWebhookSignature(rawBody, headers)

	event, parseErr := adapter.ParseWebhookEvent(rawBody, headers)
	eventID := ""
	eventType := ""
	if event != nil {
		eventID = event.ID
		eventType = event.Type
	}

	created, stored, err := billingLifecycle.RecordWebhookEvent(lifecycle.WebhookEventInput{
		Gateway:        gatewayName,
		GatewayEventID: eventID,
		EventType:      eventType,
		PayloadJSON:    string(rawBody),
		SignatureValid: signatureValid,
	})
	if err != nil {
		log.Errorf("[Webhook] Failed to persist %s event: %v", gatewayName, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if !signatureValid {
		_ = billingLifecycle.MarkWebhookProcessed(stored.ID, errInvalidSignature)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}
	if parseErr != nil {
		_ = billingLifecycle.MarkWebhookProcessed(stored.ID, parseErr)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	dispatchErr := billingLifecycle.HandleWebhookEvent(event)
	_ = billingLifecycle.MarkWebhookProcessed(stored.ID, dispatchErr)
	if dispatchErr != nil {
		log.Errorf("[Webhook] Dispatch of %s event %s failed: %v", gatewayName, eventID, dispatchErr)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

var errInvalidSignature = fiber.NewError(fiber.StatusUnauthorized, "invalid webhook signature")

// requestHeaders flattens the request headers into the map adapters expect,
// keeping both the canonical and lowercase spellings since providers
// document their signature headers in either form.
func requestHeaders(c *fiber.Ctx) map[string]string {
	headers := make(map[string]string)
	for key, values := range c.GetReqHeaders() {
		if len(values) == 0 {
			continue
		}
		headers[key] = values[0]
		headers[strings.ToLower(key)] = values[0]
	}
	return headers
}
