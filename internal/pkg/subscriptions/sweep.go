package subscriptions

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/notifications"
)

// SweepResult aggregates one expiry sweep run.
type SweepResult struct {
	Expired     int
	Cancelled   int
	Activated   int
	PlanSwapped int
	Errors      int
}

// SweepExpired walks subscriptions that crossed a lifecycle boundary and
// finalizes them: grace expiry, deferred cancellation, trial promotion,
// scheduled plan swaps and plain expiry. Per-item errors are logged and
// counted; the sweep never aborts on a single bad row.
func (e *Engine) SweepExpired(ctx context.Context, limit int) (SweepResult, error) {
	_ = ctx
	var result SweepResult

	now := e.now()
	candidates, err := e.repo.ListSweepCandidates(now, limit)
	if err != nil {
		return result, err
	}

	for i := range candidates {
		sub := &candidates[i]
		if err := e.sweepOne(sub, &result); err != nil {
			result.Errors++
			log.Errorf("[Subscriptions] sweep subscription %d failed: %v", sub.ID, err)
		}
	}
	return result, nil
}

func (e *Engine) sweepOne(sub *models.Subscription, result *SweepResult) error {
	now := e.now()

	// Scheduled downgrades are applied once the billing boundary passed,
	// before the expiry decision, so a renewal that lands right after uses
	// the new terms.
	swapped := false
	if sub.PendingPlanID != nil && !now.Before(sub.ExpiresAt) {
		e.applyPendingPlan(sub)
		result.PlanSwapped++
		swapped = true
	}

	switch sub.Status {
	case models.SubscriptionStatusPastDue:
		if sub.GraceEndsAt != nil && !now.Before(*sub.GraceEndsAt) {
			sub.Status = models.SubscriptionStatusExpired
			sub.GraceEndsAt = nil
			sub.NextBillingAt = nil
			if err := e.repo.Save(sub); err != nil {
				return err
			}
			result.Expired++
			e.notifyExpired(sub)
			return nil
		}

	case models.SubscriptionStatusPendingCancellation:
		if !now.Before(sub.ExpiresAt) {
			sub.Status = models.SubscriptionStatusCancelled
			cancelledAt := now
			sub.CancelledAt = &cancelledAt
			sub.NextBillingAt = nil
			if err := e.repo.Save(sub); err != nil {
				return err
			}
			result.Cancelled++
			notifications.Dispatch(e.notifier, notifications.Event{
				Type:           notifications.EventSubscriptionCancelled,
				SubscriptionID: sub.ID,
				CustomerEmail:  sub.CustomerEmail,
				Data:           map[string]interface{}{"at_period_end": true},
			})
			return nil
		}

	case models.SubscriptionStatusTrial:
		if sub.TrialEndsAt != nil && !now.Before(*sub.TrialEndsAt) {
			// The trial was opened by a successful payment, so the paid
			// period simply begins.
			sub.Status = models.SubscriptionStatusActive
			sub.IsTrial = false
			if err := e.repo.Save(sub); err != nil {
				return err
			}
			result.Activated++
			return nil
		}

	case models.SubscriptionStatusActive:
		if !now.Before(sub.ExpiresAt) {
			sub.Status = models.SubscriptionStatusExpired
			sub.NextBillingAt = nil
			if err := e.repo.Save(sub); err != nil {
				return err
			}
			result.Expired++
			e.notifyExpired(sub)
			return nil
		}
	}

	// A plan swap without another transition still needs saving.
	if swapped {
		return e.repo.Save(sub)
	}
	return nil
}

func (e *Engine) notifyExpired(sub *models.Subscription) {
	notifications.Dispatch(e.notifier, notifications.Event{
		Type:           notifications.EventSubscriptionExpired,
		SubscriptionID: sub.ID,
		CustomerEmail:  sub.CustomerEmail,
		Data:           map[string]interface{}{"plan": sub.PlanName},
	})
}
