package controllers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ledgersync/internal/pkg/webhook"
)

const (
	webhookServiceName  = "ledgersync-webhook"
	webhookAllowMethods = "GET, POST, OPTIONS"
)

// Headers that may carry a sender-assigned delivery id, in order of preference.
var deliveryIDHeaders = []string{"intuit-t-id", "X-Delivery-ID", "X-Webhook-ID"}

// WebhookController is the HTTP entry point for provider notifications.
type WebhookController struct {
	supervisor *webhook.Supervisor
}

func NewWebhookController(supervisor *webhook.Supervisor) *WebhookController {
	return &WebhookController{supervisor: supervisor}
}

// HandleWebhook answers every method on the webhook path. POST is the
// delivery entry point; GET and OPTIONS exist for provider checks and
// browser preflights.
func (wc *WebhookController) HandleWebhook(c *fiber.Ctx) error {
	switch c.Method() {
	case fiber.MethodOptions:
		c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
		c.Set(fiber.HeaderAccessControlAllowMethods, webhookAllowMethods)
		c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type, "+webhook.SignatureHeader)
		// SendStatus would fill the empty body with the status text.
		c.Status(fiber.StatusOK)
		return nil
	case fiber.MethodGet:
		return c.JSON(fiber.Map{
			"status":    "ok",
			"service":   webhookServiceName,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	case fiber.MethodPost:
		return wc.handleDelivery(c)
	default:
		c.Set(fiber.HeaderAllow, webhookAllowMethods)
		return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{
			"success": false,
			"message": "Method not allowed",
		})
	}
}

func (wc *WebhookController) handleDelivery(c *fiber.Ctx) error {
	// fasthttp reuses the body buffer once the handler returns, and detached
	// processing outlives the request.
	body := append([]byte(nil), c.BodyRaw()...)

	resp := wc.supervisor.Handle(c.UserContext(), webhook.Request{
		Body:       body,
		Signature:  strings.TrimSpace(c.Get(webhook.SignatureHeader)),
		DeliveryID: firstHeaderValue(c, deliveryIDHeaders...),
		RequestID:  strings.TrimSpace(c.Get(fiber.HeaderXRequestID)),
		ReceivedAt: time.Now(),
	})
	return c.Status(resp.HTTPStatus).JSON(resp)
}
