package middleware

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/campushq/campusbill/app/models"
	"github.com/campushq/campusbill/app/repository"
	"github.com/campushq/campusbill/internal/pkg/tenantcontext"
	"github.com/campushq/campusbill/internal/pkg/usage"
)

// APIKeyAuthMiddleware authenticates requests carrying a tenant API key and
// resolves the tenant context. Every authenticated request is counted
// against the tenant's API-call metric.
func APIKeyAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		hash := models.HashAPIKey(apiKey)
		tenant, err := repository.GetGlobalFactory().GetTenantRepository().GetByAPIKeyHash(hash)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
			}
			log.Printf("api key lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "API key verification failed"})
		}

		if tenant.Status != models.TenantStatusActive {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Tenant inactive"})
		}

		// Meter the call best-effort.
		if err := usage.AddAPICall(tenant.ID); err != nil {
			log.Printf("failed to count api call for tenant %d: %v", tenant.ID, err)
		}

		tenantcontext.Set(c, tenantcontext.TenantContext{
			TenantID:   tenant.ID,
			Name:       tenant.Name,
			Country:    tenant.Country,
			Currency:   tenant.Currency,
			IsResolved: true,
		})

		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
