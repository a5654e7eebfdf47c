package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/abojihad01/central-payment-system-sub002/app/controllers"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/accounts"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/cache"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/database"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/env"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/gateway"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/ledger"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/notifications"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/recovery"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/router"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/scheduler"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/subscriptions"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/webhooks"
)

func main() {
	app, sched := NewApplication()

	sched.Start()

	// Shut the scheduler down cleanly on SIGINT/SIGTERM.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		sched.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "8080")))
	log.Fatal(err)
}

// NewApplication wires the full service graph and returns the HTTP app and
// the background scheduler.
func NewApplication() (*fiber.App, *scheduler.Scheduler) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	notifier := notifications.NewFromEnv()

	accountRepo := accounts.NewRepository(db)
	selector := accounts.NewSelectorFromEnv(accountRepo, accounts.NewRedisRotation())

	engine := subscriptions.NewEngineFromDB(db, notifier)
	paymentLedger := ledger.NewFromDB(db, engine, selector, notifier)

	scanner := recovery.NewScanner(paymentLedger, ledger.NewRepository(db), accountRepo, recovery.NewGormAudit(db))
	sched := scheduler.New(scanner, engine)

	app := fiber.New(fiber.Config{
		AppName: "payd",
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	router.InstallRouter(app, router.Deps{
		Checkout:      controllers.NewCheckoutController(selector, paymentLedger, gateway.NewStripeCheckout()),
		Webhook:       controllers.NewWebhookController(paymentLedger, webhooks.NewStore(db)),
		Payments:      controllers.NewPaymentController(paymentLedger, scanner),
		Admin:         controllers.NewAdminPaymentsController(scanner, engine),
		Subscriptions: controllers.NewSubscriptionController(engine),
	})

	return app, sched
}
