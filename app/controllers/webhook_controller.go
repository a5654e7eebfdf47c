package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/webhook"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/env"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/ledger"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/webhooks"
)

// WebhookController turns verified gateway notifications into ledger
// transitions. The ledger's idempotent transitions carry the dedup
// guarantee; the event store on top keeps the delivery audit trail.
type WebhookController struct {
	ledger *ledger.Ledger
	events *webhooks.Store
}

// NewWebhookController wires the webhook controller.
func NewWebhookController(paymentLedger *ledger.Ledger, events *webhooks.Store) *WebhookController {
	return &WebhookController{ledger: paymentLedger, events: events}
}

// HandleStripe handles POST /webhooks/stripe. Unknown event types and
// unmatched sessions are acknowledged with 200 so Stripe stops retrying.
func (wc *WebhookController) HandleStripe(c *fiber.Ctx) error {
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")
	if secret == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_secret_not_configured"})
	}

	payload := append([]byte(nil), c.BodyRaw()...)
	event, err := webhook.ConstructEventWithOptions(
		payload,
		c.Get("Stripe-Signature"),
		secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		log.Warnf("[Webhook] stripe signature verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, stored, err := wc.events.Record(ctx, webhooks.EventInput{
		Gateway:        models.GatewayStripe,
		GatewayEventID: event.ID,
		EventType:      string(event.Type),
		PayloadJSON:    string(payload),
		SignatureValid: true,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_persist_failed"})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	processErr := wc.processStripeEvent(ctx, &event)
	if markErr := wc.events.MarkProcessed(ctx, stored.ID, processErr); markErr != nil {
		log.Warnf("[Webhook] mark event %d processed failed: %v", stored.ID, markErr)
	}
	if processErr != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

func (wc *WebhookController) processStripeEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		session, err := parseStripeSession(event)
		if err != nil {
			return err
		}
		if string(session.PaymentStatus) == "unpaid" {
			// Async payment methods settle later; the follow-up event or
			// the recovery scan resolves it.
			return nil
		}
		return wc.applyToPayment(ctx, session.ID, func(paymentID uint) error {
			return wc.ledger.MarkCompleted(ctx, paymentID, map[string]interface{}{
				"checkout_session_id": session.ID,
				"session_status":      string(session.Status),
				"payment_status":      string(session.PaymentStatus),
				"event_id":            event.ID,
			})
		})

	case "checkout.session.async_payment_failed":
		session, err := parseStripeSession(event)
		if err != nil {
			return err
		}
		return wc.applyToPayment(ctx, session.ID, func(paymentID uint) error {
			return wc.ledger.MarkFailed(ctx, paymentID, "stripe async payment failed")
		})

	case "checkout.session.expired":
		session, err := parseStripeSession(event)
		if err != nil {
			return err
		}
		return wc.applyToPayment(ctx, session.ID, func(paymentID uint) error {
			return wc.ledger.MarkFailed(ctx, paymentID, "stripe checkout session expired")
		})

	default:
		// Acknowledge everything else so Stripe does not retry.
		return nil
	}
}

func (wc *WebhookController) applyToPayment(ctx context.Context, sessionID string, apply func(paymentID uint) error) error {
	payment, err := wc.ledger.GetBySessionRef(ctx, models.GatewayStripe, sessionID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			// A session we never opened (other environment, manual test).
			log.Warnf("[Webhook] no payment for stripe session %s, ignoring", sessionID)
			return nil
		}
		return err
	}
	return apply(payment.ID)
}

func parseStripeSession(event *stripe.Event) (*stripe.CheckoutSession, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, err
	}
	return &session, nil
}
