package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/abojihad01/central-payment-system-sub002/app/controllers"
)

type ApiRouter struct {
	deps Deps
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}

func (h *ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{Max: 60}))

	v1 := api.Group("/v1")
	v1.Post("/checkout", h.deps.Checkout.HandleCreate)
	v1.Get("/payments/:public_id", h.deps.Payments.HandleStatus)

	// Browser return lives outside /api so gateway redirect URLs stay
	// short-lived and unauthenticated.
	app.Get("/payments/return", h.deps.Payments.HandleReturn)

	admin := v1.Group("/admin", controllers.RequireAPIKey)
	admin.Post("/recovery/scan", h.deps.Admin.HandleRecoveryScan)
	admin.Post("/recovery/payments/:id", h.deps.Admin.HandleRecoverPayment)
	admin.Post("/subscriptions/sweep", h.deps.Admin.HandleSweep)
	admin.Post("/subscriptions/:id/pause", h.deps.Subscriptions.HandlePause)
	admin.Post("/subscriptions/:id/resume", h.deps.Subscriptions.HandleResume)
	admin.Post("/subscriptions/:id/cancel", h.deps.Subscriptions.HandleCancel)
	admin.Post("/subscriptions/:id/plan", h.deps.Subscriptions.HandleChangePlan)
}
