package router

import (
	"github.com/gofiber/fiber/v2"
)

type WebhookRouter struct {
	deps Deps
}

func NewWebhookRouter(deps Deps) *WebhookRouter {
	return &WebhookRouter{deps: deps}
}

// InstallRouter registers the gateway callback endpoints. No rate limiter
// here: gateways batch retries and must never be throttled into giving up.
func (h *WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post("/webhooks/stripe", h.deps.Webhook.HandleStripe)
}
