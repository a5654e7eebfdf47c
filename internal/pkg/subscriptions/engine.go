package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/notifications"
)

// DefaultGracePeriod is the window after a failed renewal during which the
// subscription stays usable pending retry.
const DefaultGracePeriod = 72 * time.Hour

// fallbackDurationDays is used when a payment references a missing plan.
// Settlement is never blocked by a broken catalog record.
const fallbackDurationDays = 30

// ErrNotFound is returned when the subscription does not exist.
var ErrNotFound = errors.New("subscriptions: not found")

// Engine derives and maintains subscription state from payment ledger
// events.
type Engine struct {
	repo        Repository
	notifier    notifications.Notifier
	GracePeriod time.Duration

	now func() time.Time
}

// NewEngine creates a subscription engine.
func NewEngine(repo Repository, notifier notifications.Notifier) *Engine {
	return &Engine{
		repo:        repo,
		notifier:    notifier,
		GracePeriod: DefaultGracePeriod,
		now:         time.Now,
	}
}

// NewEngineFromDB creates a subscription engine from a GORM DB handle.
func NewEngineFromDB(db *gorm.DB, notifier notifications.Notifier) *Engine {
	return NewEngine(NewRepository(db), notifier)
}

// Materialize turns a completed payment into subscription state: a renewal
// extends its target, anything else creates a new subscription. Calling it
// again for an already-linked payment is a no-op. Duplicate settlement
// writers can carry stale reads of the same payment, so the no-op is not
// decided from the in-memory copy alone: a new subscription is inserted
// behind the unique payment index and a renewal is applied only after
// winning the conditional payment claim. The loser of either write loads
// the winner's row instead.
func (e *Engine) Materialize(ctx context.Context, payment *models.Payment) (*models.Subscription, error) {
	_ = ctx
	if payment.SubscriptionID != nil {
		return e.repo.GetByID(*payment.SubscriptionID)
	}

	if payment.IsRenewal {
		if sub := e.resolveRenewalTarget(payment); sub != nil {
			claimed, err := e.repo.ClaimPayment(payment.ID, sub.ID)
			if err != nil {
				return nil, err
			}
			id := sub.ID
			payment.SubscriptionID = &id
			if !claimed {
				return e.repo.GetByID(sub.ID)
			}
			if err := e.renew(sub, payment); err != nil {
				return nil, err
			}
			return sub, nil
		}
		log.Warnf("[Subscriptions] renewal payment %d has no resolvable target, creating new subscription", payment.ID)
	}

	return e.create(payment)
}

// HandleFailedRenewal moves the renewal target into past_due with a grace
// window. Unresolvable targets are logged and skipped.
func (e *Engine) HandleFailedRenewal(ctx context.Context, payment *models.Payment) error {
	_ = ctx
	sub := e.resolveRenewalTarget(payment)
	if sub == nil {
		log.Warnf("[Subscriptions] failed renewal payment %d has no resolvable target", payment.ID)
		return nil
	}
	if sub.Status != models.SubscriptionStatusActive && sub.Status != models.SubscriptionStatusTrial {
		return nil
	}

	now := e.now()
	graceEnd := now.Add(e.GracePeriod)
	sub.Status = models.SubscriptionStatusPastDue
	sub.GraceEndsAt = &graceEnd
	if err := e.repo.Save(sub); err != nil {
		return err
	}

	notifications.Dispatch(e.notifier, notifications.Event{
		Type:           notifications.EventSubscriptionPastDue,
		PaymentID:      payment.ID,
		SubscriptionID: sub.ID,
		CustomerEmail:  sub.CustomerEmail,
		Data:           map[string]interface{}{"grace_ends_at": graceEnd},
	})
	return nil
}

// resolveRenewalTarget prefers the explicit reference and falls back to the
// most recent active subscription for the customer email. The fallback is a
// heuristic that can mis-attribute under concurrent subscriptions for one
// customer, so it is logged loudly rather than applied silently.
func (e *Engine) resolveRenewalTarget(payment *models.Payment) *models.Subscription {
	if payment.RenewalTargetID != nil {
		sub, err := e.repo.GetByID(*payment.RenewalTargetID)
		if err == nil {
			return sub
		}
		log.Warnf("[Subscriptions] explicit renewal target %d for payment %d not found: %v",
			*payment.RenewalTargetID, payment.ID, err)
	}

	sub, err := e.repo.FindMostRecentActiveByEmail(payment.CustomerEmail)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Subscriptions] renewal fallback lookup for payment %d failed: %v", payment.ID, err)
		}
		return nil
	}
	log.Warnf("[Subscriptions] renewal payment %d matched subscription %d by customer email only (best-effort fallback)",
		payment.ID, sub.ID)
	return sub
}

func (e *Engine) create(payment *models.Payment) (*models.Subscription, error) {
	now := e.now()
	plan := e.planFor(payment)

	sub := &models.Subscription{
		PublicID:          uuid.New().String(),
		CustomerEmail:     payment.CustomerEmail,
		PaymentID:         payment.ID,
		Status:            models.SubscriptionStatusActive,
		StartsAt:          now,
		BillingCycleCount: 1,
		PlanID:            plan.ID,
		PlanName:          plan.Name,
		PlanPrice:         plan.Price,
		PlanCurrency:      plan.Currency,
		PlanDurationDays:  plan.DurationDays,
		PlanInterval:      plan.Interval,
		PlanTrialDays:     plan.TrialDays,
	}

	expiry := now.Add(time.Duration(plan.DurationDays) * 24 * time.Hour)
	if plan.TrialDays > 0 {
		trialEnd := now.Add(time.Duration(plan.TrialDays) * 24 * time.Hour)
		sub.Status = models.SubscriptionStatusTrial
		sub.IsTrial = true
		sub.TrialEndsAt = &trialEnd
		expiry = trialEnd.Add(time.Duration(plan.DurationDays) * 24 * time.Hour)
	}
	sub.ExpiresAt = expiry
	if plan.IsRecurring() {
		next := expiry
		sub.NextBillingAt = &next
	}

	created, err := e.repo.CreateForPayment(sub)
	if err != nil {
		return nil, err
	}
	if !created {
		// Another writer materialized this payment between our read and the
		// insert. Its subscription is the one that counts.
		existing, err := e.repo.GetByPaymentID(payment.ID)
		if err != nil {
			return nil, err
		}
		if err := e.link(payment, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if err := e.link(payment, sub); err != nil {
		return nil, err
	}

	notifications.Dispatch(e.notifier, notifications.Event{
		Type:           notifications.EventSubscriptionCreated,
		PaymentID:      payment.ID,
		SubscriptionID: sub.ID,
		CustomerEmail:  sub.CustomerEmail,
		Data:           map[string]interface{}{"plan": sub.PlanName, "expires_at": sub.ExpiresAt},
	})
	return sub, nil
}

// renew extends the entitlement by one plan duration from the later of the
// current expiry and now. Using "later of" prevents double-crediting a
// renewal that was processed late.
func (e *Engine) renew(sub *models.Subscription, payment *models.Payment) error {
	now := e.now()

	if sub.PendingPlanID != nil {
		e.applyPendingPlan(sub)
	}

	base := sub.ExpiresAt
	if now.After(base) {
		base = now
	}
	sub.ExpiresAt = base.Add(sub.Duration())
	sub.BillingCycleCount++

	switch sub.Status {
	case models.SubscriptionStatusPastDue, models.SubscriptionStatusTrial, models.SubscriptionStatusPaused:
		sub.Status = models.SubscriptionStatusActive
	}
	sub.IsTrial = false
	sub.GraceEndsAt = nil
	if sub.PlanInterval != models.PlanIntervalOnce {
		next := sub.ExpiresAt
		sub.NextBillingAt = &next
	}

	if err := e.repo.Save(sub); err != nil {
		return err
	}

	notifications.Dispatch(e.notifier, notifications.Event{
		Type:           notifications.EventSubscriptionRenewed,
		PaymentID:      payment.ID,
		SubscriptionID: sub.ID,
		CustomerEmail:  sub.CustomerEmail,
		Data:           map[string]interface{}{"expires_at": sub.ExpiresAt, "billing_cycle": sub.BillingCycleCount},
	})
	return nil
}

// Renew is the exported entry for an explicit renewal against a known
// subscription, used by operator tooling.
func (e *Engine) Renew(ctx context.Context, subscriptionID uint, payment *models.Payment) error {
	_ = ctx
	sub, err := e.repo.GetByID(subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return e.renew(sub, payment)
}

func (e *Engine) applyPendingPlan(sub *models.Subscription) {
	plan, err := e.repo.GetPlan(*sub.PendingPlanID)
	if err != nil {
		log.Warnf("[Subscriptions] pending plan %d for subscription %d not found, keeping current terms: %v",
			*sub.PendingPlanID, sub.ID, err)
		sub.PendingPlanID = nil
		return
	}
	applySnapshot(sub, plan)
	sub.PendingPlanID = nil
}

// planFor loads the plan referenced by the payment, falling back to safe
// defaults when the catalog record is missing.
func (e *Engine) planFor(payment *models.Payment) *models.Plan {
	if payment.PlanID != nil {
		plan, err := e.repo.GetPlan(*payment.PlanID)
		if err == nil {
			return plan
		}
		log.Warnf("[Subscriptions] plan %d for payment %d not found, using %d-day fallback: %v",
			*payment.PlanID, payment.ID, fallbackDurationDays, err)
	} else {
		log.Warnf("[Subscriptions] payment %d has no plan reference, using %d-day fallback",
			payment.ID, fallbackDurationDays)
	}
	return &models.Plan{
		Name:         "fallback",
		Price:        payment.Amount,
		Currency:     payment.Currency,
		DurationDays: fallbackDurationDays,
		Interval:     models.PlanIntervalMonth,
	}
}

func (e *Engine) link(payment *models.Payment, sub *models.Subscription) error {
	if err := e.repo.LinkPayment(payment.ID, sub.ID); err != nil {
		return err
	}
	id := sub.ID
	payment.SubscriptionID = &id
	return nil
}

func applySnapshot(sub *models.Subscription, plan *models.Plan) {
	sub.PlanID = plan.ID
	sub.PlanName = plan.Name
	sub.PlanPrice = plan.Price
	sub.PlanCurrency = plan.Currency
	sub.PlanDurationDays = plan.DurationDays
	sub.PlanInterval = plan.Interval
	sub.PlanTrialDays = plan.TrialDays
}
