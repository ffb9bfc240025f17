package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/JakayaMrisho/SurveyPesa/app/controllers"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "SurveyPesa API",
		})
	})

	// API v1 routes, all behind API key auth
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware())

	v1.Post("/responses", controllers.HandleSubmitResponseAPI)
	v1.Get("/payouts/:responseId", controllers.HandleGetPayoutAPI)

	v1.Get("/events", controllers.HandleListEventsAPI)

	v1.Post("/surveys/:id/webhooks", controllers.HandleCreateWebhookAPI)
	v1.Get("/surveys/:id/webhooks", controllers.HandleListWebhooksAPI)
	v1.Patch("/webhooks/:id/activate", controllers.HandleActivateWebhookAPI)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
