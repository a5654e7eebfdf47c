package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/gateway"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/ledger"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/recovery"
)

// PaymentController serves payment status lookups and the browser-return
// verification. The return handler never trusts the redirect itself: it
// reconciles against the gateway through the same path the recovery scan
// uses.
type PaymentController struct {
	ledger  *ledger.Ledger
	scanner *recovery.Scanner
}

// NewPaymentController wires the payment controller.
func NewPaymentController(paymentLedger *ledger.Ledger, scanner *recovery.Scanner) *PaymentController {
	return &PaymentController{ledger: paymentLedger, scanner: scanner}
}

// HandleReturn handles GET /payments/return?payment=<public_id>. The
// cancelled flag marks an abandoned checkout; everything else is verified
// against the gateway before an answer is given.
func (pc *PaymentController) HandleReturn(c *fiber.Ctx) error {
	publicID := strings.TrimSpace(c.Query("payment"))
	if publicID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_payment"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	payment, err := pc.ledger.GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "payment_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup_failed"})
	}

	if payment.IsTerminal() {
		return c.Status(fiber.StatusOK).JSON(paymentStatusBody(payment))
	}

	if c.Query("cancelled") == "1" {
		if err := pc.ledger.MarkCancelled(ctx, payment.ID); err != nil {
			log.Warnf("[Payments] cancel payment %d on return failed: %v", payment.ID, err)
		}
		payment.Status = models.PaymentStatusCancelled
		return c.Status(fiber.StatusOK).JSON(paymentStatusBody(payment))
	}

	outcome, err := pc.scanner.RecoverPayment(ctx, payment.ID)
	if err != nil {
		// Gateway unreachable or transient trouble: report pending, the
		// webhook or the next scan settles it.
		log.Warnf("[Payments] return verification for payment %d failed: %v", payment.ID, err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"payment_id": payment.PublicID,
			"status":     models.PaymentStatusPending,
			"verifying":  true,
		})
	}

	switch outcome.Verdict {
	case gateway.VerdictCompleted:
		payment.Status = models.PaymentStatusCompleted
	case gateway.VerdictFailed:
		payment.Status = models.PaymentStatusFailed
	}
	body := paymentStatusBody(payment)
	if outcome.Verdict == gateway.VerdictPending || outcome.Verdict == gateway.VerdictUnknown {
		body["verifying"] = true
	}
	return c.Status(fiber.StatusOK).JSON(body)
}

// HandleStatus handles GET /api/v1/payments/:public_id.
func (pc *PaymentController) HandleStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payment, err := pc.ledger.GetByPublicID(ctx, c.Params("public_id"))
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "payment_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(paymentStatusBody(payment))
}

func paymentStatusBody(payment *models.Payment) fiber.Map {
	body := fiber.Map{
		"payment_id": payment.PublicID,
		"status":     payment.Status,
		"amount":     payment.Amount,
		"currency":   payment.Currency,
	}
	if payment.SubscriptionID != nil {
		body["subscription_id"] = *payment.SubscriptionID
	}
	return body
}
