package subscriptions

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/notifications"
)

var (
	// ErrNotPausable is returned when the subscription is not in a state
	// that can be paused.
	ErrNotPausable = errors.New("subscriptions: only active subscriptions can be paused")
	// ErrNotPaused is returned when resuming a subscription that is not
	// paused.
	ErrNotPaused = errors.New("subscriptions: subscription is not paused")
	// ErrTerminal is returned for lifecycle operations on a cancelled or
	// expired subscription.
	ErrTerminal = errors.New("subscriptions: subscription already reached a terminal state")
)

// Proration is the partial charge computed for an immediate plan change:
// remaining entitlement days times the new plan's daily rate.
type Proration struct {
	RemainingDays int
	DailyRate     int64
	Amount        int64
}

// Pause suspends an active subscription. The pause timestamp is kept so the
// resume can credit the paused time back.
func (e *Engine) Pause(ctx context.Context, subscriptionID uint) error {
	_ = ctx
	sub, err := e.get(subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != models.SubscriptionStatusActive {
		return ErrNotPausable
	}

	now := e.now()
	sub.Status = models.SubscriptionStatusPaused
	sub.PausedAt = &now
	return e.repo.Save(sub)
}

// Resume reactivates a paused subscription and extends the expiry by the
// paused duration, so paused time is never charged against entitlement.
func (e *Engine) Resume(ctx context.Context, subscriptionID uint) error {
	_ = ctx
	sub, err := e.get(subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != models.SubscriptionStatusPaused || sub.PausedAt == nil {
		return ErrNotPaused
	}

	now := e.now()
	paused := now.Sub(*sub.PausedAt)
	if paused < 0 {
		paused = 0
	}
	sub.ExpiresAt = sub.ExpiresAt.Add(paused)
	if sub.NextBillingAt != nil {
		next := sub.NextBillingAt.Add(paused)
		sub.NextBillingAt = &next
	}
	sub.Status = models.SubscriptionStatusActive
	sub.PausedAt = nil
	return e.repo.Save(sub)
}

// Cancel ends the subscription, either immediately (expiry clamped to now)
// or at the end of the paid period, in which case the expiry sweep
// finalizes it later.
func (e *Engine) Cancel(ctx context.Context, subscriptionID uint, reason string, atPeriodEnd bool) error {
	_ = ctx
	sub, err := e.get(subscriptionID)
	if err != nil {
		return err
	}
	if sub.IsTerminal() {
		return ErrTerminal
	}

	now := e.now()
	sub.CancelReason = reason
	if atPeriodEnd {
		sub.Status = models.SubscriptionStatusPendingCancellation
		sub.WillCancelAtPeriodEnd = true
	} else {
		sub.Status = models.SubscriptionStatusCancelled
		sub.CancelledAt = &now
		sub.ExpiresAt = now
		sub.NextBillingAt = nil
	}
	if err := e.repo.Save(sub); err != nil {
		return err
	}

	notifications.Dispatch(e.notifier, notifications.Event{
		Type:           notifications.EventSubscriptionCancelled,
		SubscriptionID: sub.ID,
		CustomerEmail:  sub.CustomerEmail,
		Data:           map[string]interface{}{"at_period_end": atPeriodEnd, "reason": reason},
	})
	return nil
}

// ChangePlan switches the subscription to a new plan. Upgrades apply
// immediately and return the proration the caller should charge;
// downgrades are scheduled and applied by the sweep or the next renewal at
// the billing boundary.
func (e *Engine) ChangePlan(ctx context.Context, subscriptionID, newPlanID uint, immediate bool) (*Proration, error) {
	_ = ctx
	sub, err := e.get(subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.IsTerminal() {
		return nil, ErrTerminal
	}

	plan, err := e.repo.GetPlan(newPlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if !immediate {
		id := plan.ID
		sub.PendingPlanID = &id
		return nil, e.repo.Save(sub)
	}

	proration := e.prorate(sub, plan)
	applySnapshot(sub, plan)
	sub.PendingPlanID = nil
	if err := e.repo.Save(sub); err != nil {
		return nil, err
	}
	return proration, nil
}

// prorate computes remaining days times the new plan's daily rate.
func (e *Engine) prorate(sub *models.Subscription, plan *models.Plan) *Proration {
	now := e.now()
	remaining := sub.ExpiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}

	durationDays := plan.DurationDays
	if durationDays <= 0 {
		durationDays = fallbackDurationDays
	}
	daily := plan.Price / int64(durationDays)

	return &Proration{
		RemainingDays: days,
		DailyRate:     daily,
		Amount:        daily * int64(days),
	}
}

func (e *Engine) get(id uint) (*models.Subscription, error) {
	sub, err := e.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}
