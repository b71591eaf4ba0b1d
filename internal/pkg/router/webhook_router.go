package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ledgersync/app/controllers"
)

const WebhookPath = "/webhooks/quickbooks"

type WebhookRouter struct {
	controller *controllers.WebhookController
}

func (w WebhookRouter) InstallRouter(app *fiber.App) {
	app.All(WebhookPath, w.controller.HandleWebhook)
}

func NewWebhookRouter(deps Dependencies) *WebhookRouter {
	return &WebhookRouter{controller: deps.Webhook}
}
