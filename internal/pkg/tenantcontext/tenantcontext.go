package tenantcontext

import "github.com/gofiber/fiber/v2"

const contextKey = "TENANT_CONTEXT"

// TenantContext represents the authenticated tenant for a request
type TenantContext struct {
	TenantID   uint   `json:"tenant_id"`
	Name       string `json:"name"`
	Country    string `json:"country"`
	Currency   string `json:"currency"`
	IsResolved bool   `json:"is_resolved"`
}

// Set stores the tenant context on the fiber context
func Set(c *fiber.Ctx, ctx TenantContext) {
	c.Locals(contextKey, ctx)
}

// Get retrieves the tenant context from fiber context
// Returns an unresolved context if none is set
func Get(c *fiber.Ctx) TenantContext {
	if ctx := c.Locals(contextKey); ctx != nil {
		return ctx.(TenantContext)
	}
	return TenantContext{IsResolved: false}
}

// TenantID returns the current tenant's ID, or 0 if unauthenticated
func TenantID(c *fiber.Ctx) uint {
	return Get(c).TenantID
}
