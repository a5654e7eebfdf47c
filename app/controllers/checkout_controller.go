package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/accounts"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/env"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/gateway"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/ledger"
)

// CheckoutRequest is the public checkout DTO.
type CheckoutRequest struct {
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	Currency      string `json:"currency" validate:"omitempty,len=3"`
	Gateway       string `json:"gateway" validate:"omitempty,oneof=stripe paypal"`
	CustomerEmail string `json:"customer_email" validate:"required,email"`
	CustomerPhone string `json:"customer_phone" validate:"omitempty,max=50"`
	Country       string `json:"country" validate:"omitempty,len=2"`
	PlanID        *uint  `json:"plan_id" validate:"omitempty,gt=0"`
	ProductName   string `json:"product_name" validate:"omitempty,max=100"`
}

// CheckoutController drives the checkout flow: pick an account, create the
// pending payment, open a hosted session and hand back the redirect URL.
type CheckoutController struct {
	selector *accounts.Selector
	ledger   *ledger.Ledger
	checkout gateway.CheckoutCreator
	validate *validator.Validate
	appURL   string
}

// NewCheckoutController wires the checkout controller.
func NewCheckoutController(selector *accounts.Selector, paymentLedger *ledger.Ledger, checkout gateway.CheckoutCreator) *CheckoutController {
	return &CheckoutController{
		selector: selector,
		ledger:   paymentLedger,
		checkout: checkout,
		validate: validator.New(),
		appURL:   strings.TrimRight(env.GetEnv("APP_URL", "http://localhost:8080"), "/"),
	}
}

// HandleCreate handles POST /api/v1/checkout. When a session cannot be
// opened on the selected account, the account is excluded and selection
// retries, bounded by the selector's fallback limit.
func (cc *CheckoutController) HandleCreate(c *fiber.Ctx) error {
	var req CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	if err := cc.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "details": err.Error()})
	}

	gatewayName := strings.ToLower(strings.TrimSpace(req.Gateway))
	if gatewayName == "" {
		gatewayName = models.GatewayStripe
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "EUR"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var excluded []uint
	attempts := cc.selector.MaxFallbackAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		account, err := cc.selector.Select(ctx, accounts.SelectionInput{
			Gateway:     gatewayName,
			Currency:    currency,
			Country:     strings.ToUpper(strings.TrimSpace(req.Country)),
			ExcludedIDs: excluded,
		})
		if err != nil {
			if errors.Is(err, accounts.ErrNoAccountAvailable) {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "no_account_available"})
			}
			log.Errorf("[Checkout] account selection failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "selection_failed"})
		}

		payment, err := cc.ledger.CreatePending(ctx, ledger.CreateInput{
			Amount:        req.Amount,
			Currency:      currency,
			Gateway:       gatewayName,
			CustomerEmail: req.CustomerEmail,
			CustomerPhone: req.CustomerPhone,
			AccountID:     account.ID,
			PlanID:        req.PlanID,
		})
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "payment_create_failed"})
		}

		session, err := cc.checkout.CreateCheckoutSession(ctx, account, gateway.CheckoutInput{
			Amount:          req.Amount,
			Currency:        currency,
			ProductName:     req.ProductName,
			PaymentPublicID: payment.PublicID,
			CustomerEmail:   payment.CustomerEmail,
			SuccessURL:      cc.appURL + "/payments/return?payment=" + payment.PublicID,
			CancelURL:       cc.appURL + "/payments/return?payment=" + payment.PublicID + "&cancelled=1",
		})
		if err != nil {
			log.Warnf("[Checkout] session on account %d failed, trying next account: %v", account.ID, err)
			// MarkFailed records the failure on the account; counting it here
			// as well would double the failure stat.
			if failErr := cc.ledger.MarkFailed(ctx, payment.ID, "checkout session creation failed"); failErr != nil {
				log.Warnf("[Checkout] mark payment %d failed errored: %v", payment.ID, failErr)
			}
			excluded = append(excluded, account.ID)
			continue
		}

		if err := cc.ledger.AttachGatewayRefs(ctx, payment.ID, session.SessionID, session.IntentID); err != nil {
			log.Errorf("[Checkout] attach refs to payment %d failed: %v", payment.ID, err)
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"payment_id":   payment.PublicID,
			"account_id":   account.ID,
			"checkout_url": session.URL,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "all_accounts_failed"})
}
