package subscriptions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
)

func activeSubscription(repo *fakeRepo, now time.Time) *models.Subscription {
	sub := &models.Subscription{
		CustomerEmail:    "kunde@example.com",
		Status:           models.SubscriptionStatusActive,
		StartsAt:         now.Add(-10 * 24 * time.Hour),
		ExpiresAt:        now.Add(20 * 24 * time.Hour),
		PlanDurationDays: 30,
		PlanInterval:     models.PlanIntervalMonth,
		PlanPrice:        999,
	}
	next := sub.ExpiresAt
	sub.NextBillingAt = &next
	if err := repo.Create(sub); err != nil {
		panic(err)
	}
	return sub
}

func TestPauseAndResumeCreditsPausedTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	sub := activeSubscription(repo, now)
	engine := newTestEngine(repo, now)

	require.NoError(t, engine.Pause(context.Background(), sub.ID))

	paused, err := repo.GetByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusPaused, paused.Status)
	require.NotNil(t, paused.PausedAt)

	// Resume five days later: expiry and billing shift by the pause.
	engine.now = func() time.Time { return now.Add(5 * 24 * time.Hour) }
	require.NoError(t, engine.Resume(context.Background(), sub.ID))

	resumed, err := repo.GetByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, resumed.Status)
	assert.Nil(t, resumed.PausedAt)
	assert.Equal(t, sub.ExpiresAt.Add(5*24*time.Hour), resumed.ExpiresAt)
	require.NotNil(t, resumed.NextBillingAt)
	assert.Equal(t, sub.ExpiresAt.Add(5*24*time.Hour), *resumed.NextBillingAt)
}

func TestPauseRequiresActive(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	sub := activeSubscription(repo, now)
	sub.Status = models.SubscriptionStatusPastDue
	require.NoError(t, repo.Save(sub))
	engine := newTestEngine(repo, now)

	err := engine.Pause(context.Background(), sub.ID)

	assert.True(t, errors.Is(err, ErrNotPausable))
}

func TestResumeRequiresPaused(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	sub := activeSubscription(repo, now)
	engine := newTestEngine(repo, now)

	err := engine.Resume(context.Background(), sub.ID)

	assert.True(t, errors.Is(err, ErrNotPaused))
}

func TestCancelImmediate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	sub := activeSubscription(repo, now)
	engine := newTestEngine(repo, now)

	require.NoError(t, engine.Cancel(context.Background(), sub.ID, "customer request", false))

	stored, err := repo.GetByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, stored.Status)
	assert.Equal(t, now, stored.ExpiresAt)
	assert.Nil(t, stored.NextBillingAt)
	require.NotNil(t, stored.CancelledAt)
	assert.Equal(t, "customer request", stored.CancelReason)
}

func TestCancelAtPeriodEndKeepsEntitlement(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	sub := activeSubscription(repo, now)
	engine := newTestEngine(repo, now)

	require.NoError(t, engine.Cancel(context.Background(), sub.ID, "", true))

	stored, err := repo.GetByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusPendingCancellation, stored.Status)
	assert.True(t, stored.WillCancelAtPeriodEnd)
	// The paid period is untouched until the sweep finalizes it.
	assert.Equal(t, sub.ExpiresAt, stored.ExpiresAt)
	assert.True(t, stored.IsUsable(now))
}

func TestCancelTerminalFails(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	sub := activeSubscription(repo, now)
	sub.Status = models.SubscriptionStatusExpired
	require.NoError(t, repo.Save(sub))
	engine := newTestEngine(repo, now)

	err := engine.Cancel(context.Background(), sub.ID, "", false)

	assert.True(t, errors.Is(err, ErrTerminal))
}

func TestChangePlanDeferredSchedulesSwap(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	sub := activeSubscription(repo, now)
	basic := &models.Plan{ID: 30, Name: "Basic Monthly", Price: 499, Currency: "EUR", DurationDays: 30, Interval: models.PlanIntervalMonth}
	repo.plans[basic.ID] = basic
	engine := newTestEngine(repo, now)

	proration, err := engine.ChangePlan(context.Background(), sub.ID, basic.ID, false)

	require.NoError(t, err)
	assert.Nil(t, proration)
	stored, err := repo.GetByID(sub.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PendingPlanID)
	assert.Equal(t, basic.ID, *stored.PendingPlanID)
	// Current terms stay until the boundary.
	assert.Equal(t, sub.PlanPrice, stored.PlanPrice)
}

func TestChangePlanImmediateProrates(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	sub := activeSubscription(repo, now) // 20 days left
	yearly := &models.Plan{ID: 31, Name: "Premium Yearly", Price: 7300, Currency: "EUR", DurationDays: 365, Interval: models.PlanIntervalYear}
	repo.plans[yearly.ID] = yearly
	engine := newTestEngine(repo, now)

	proration, err := engine.ChangePlan(context.Background(), sub.ID, yearly.ID, true)

	require.NoError(t, err)
	require.NotNil(t, proration)
	assert.Equal(t, 20, proration.RemainingDays)
	assert.Equal(t, int64(20), proration.DailyRate) // 7300 / 365
	assert.Equal(t, int64(400), proration.Amount)

	stored, err := repo.GetByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, yearly.Name, stored.PlanName)
	assert.Equal(t, yearly.Price, stored.PlanPrice)
	assert.Nil(t, stored.PendingPlanID)
}

func TestChangePlanUnknownPlan(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepo()
	sub := activeSubscription(repo, now)
	engine := newTestEngine(repo, now)

	_, err := engine.ChangePlan(context.Background(), sub.ID, 999, true)

	assert.True(t, errors.Is(err, ErrNotFound))
}
