package router

import (
	"github.com/campushq/campusbill/app/controllers"
	"github.com/campushq/campusbill/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "CampusBill billing API",
		})
	})

	v1 := api.Group("/v1")

	// Webhooks authenticate via signature, not API key, and must see the
	// raw body.
	v1.Post("/billing/webhooks/:gateway", controllers.HandleGatewayWebhook)

	billing := v1.Group("/billing", middleware.APIKeyAuthMiddleware())
	billing.Get("/plans", controllers.HandleListPlans)
	billing.Get("/plans/:id", controllers.HandleGetPlan)
	billing.Post("/subscribe", controllers.HandleSubscribe)
	billing.Get("/subscription", controllers.HandleGetSubscription)
	billing.Put("/subscription/:id", controllers.HandleUpdateSubscription)
	billing.Delete("/subscription/:id", controllers.HandleCancelSubscription)
	billing.Get("/usage", controllers.HandleGetUsage)
	billing.Get("/usage/limits", controllers.HandleGetUsageLimits)
	billing.Post("/payment", controllers.HandlePayment)
	billing.Get("/gateways", controllers.HandleListGateways)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
