package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/abojihad01/central-payment-system-sub002/app/controllers"
)

// Router installs a route group on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps carries the wired controllers into the routers.
type Deps struct {
	Checkout      *controllers.CheckoutController
	Webhook       *controllers.WebhookController
	Payments      *controllers.PaymentController
	Admin         *controllers.AdminPaymentsController
	Subscriptions *controllers.SubscriptionController
}

// InstallRouter registers all route groups.
func InstallRouter(app *fiber.App, deps Deps) {
	setup(app, NewApiRouter(deps), NewWebhookRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
