package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
)

type fakeRepo struct {
	accounts  []models.PaymentAccount
	successes map[uint]int
	failures  map[uint]int
}

func newFakeRepo(accounts ...models.PaymentAccount) *fakeRepo {
	return &fakeRepo{
		accounts:  accounts,
		successes: map[uint]int{},
		failures:  map[uint]int{},
	}
}

func (r *fakeRepo) ListActiveByGateway(gateway string) ([]models.PaymentAccount, error) {
	var out []models.PaymentAccount
	for _, a := range r.accounts {
		if a.Gateway == gateway && a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetByID(id uint) (*models.PaymentAccount, error) {
	for i := range r.accounts {
		if r.accounts[i].ID == id {
			return &r.accounts[i], nil
		}
	}
	return nil, ErrNoAccountAvailable
}

func (r *fakeRepo) RecordSuccess(id uint, amount int64, usedAt time.Time) error {
	r.successes[id]++
	for i := range r.accounts {
		if r.accounts[i].ID == id {
			r.accounts[i].SuccessfulTransactions++
			r.accounts[i].TotalAmount += amount
			t := usedAt
			r.accounts[i].LastUsedAt = &t
		}
	}
	return nil
}

func (r *fakeRepo) RecordFailure(id uint, usedAt time.Time) error {
	r.failures[id]++
	for i := range r.accounts {
		if r.accounts[i].ID == id {
			r.accounts[i].FailedTransactions++
			t := usedAt
			r.accounts[i].LastUsedAt = &t
		}
	}
	return nil
}

type fakeRotation struct {
	counter int64
}

func (f *fakeRotation) Next(_ context.Context, _ string) (int64, error) {
	f.counter++
	return f.counter, nil
}

func stripeAccount(id uint, opts ...func(*models.PaymentAccount)) models.PaymentAccount {
	a := models.PaymentAccount{
		ID:      id,
		Gateway: models.GatewayStripe,
		Active:  true,
		Weight:  1,
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

func TestSelectLeastUsedPrefersLowestSuccessCount(t *testing.T) {
	repo := newFakeRepo(
		stripeAccount(1, func(a *models.PaymentAccount) { a.SuccessfulTransactions = 5 }),
		stripeAccount(2, func(a *models.PaymentAccount) { a.SuccessfulTransactions = 2 }),
		stripeAccount(3, func(a *models.PaymentAccount) { a.SuccessfulTransactions = 9 }),
	)
	s := NewSelector(repo, models.StrategyLeastUsed, nil)

	got, err := s.Select(context.Background(), SelectionInput{Gateway: models.GatewayStripe})
	require.NoError(t, err)
	assert.Equal(t, uint(2), got.ID)
}

func TestSelectLeastUsedTieBreaksOnOldestIdle(t *testing.T) {
	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now().Add(-1 * time.Hour)
	repo := newFakeRepo(
		stripeAccount(1, func(a *models.PaymentAccount) { a.LastUsedAt = &recent }),
		stripeAccount(2, func(a *models.PaymentAccount) { a.LastUsedAt = &old }),
	)
	s := NewSelector(repo, models.StrategyLeastUsed, nil)

	got, err := s.Select(context.Background(), SelectionInput{Gateway: models.GatewayStripe})
	require.NoError(t, err)
	assert.Equal(t, uint(2), got.ID)
}

func TestSelectLeastUsedSurfacesNeverUsedAccounts(t *testing.T) {
	used := time.Now().Add(-time.Minute)
	repo := newFakeRepo(
		stripeAccount(1, func(a *models.PaymentAccount) { a.LastUsedAt = &used }),
		stripeAccount(2), // never used
	)
	s := NewSelector(repo, models.StrategyLeastUsed, nil)

	got, err := s.Select(context.Background(), SelectionInput{Gateway: models.GatewayStripe})
	require.NoError(t, err)
	assert.Equal(t, uint(2), got.ID)
}

func TestSelectFiltersCurrencyCountryAndExclusions(t *testing.T) {
	repo := newFakeRepo(
		stripeAccount(1, func(a *models.PaymentAccount) { a.Currencies = "USD" }),
		stripeAccount(2, func(a *models.PaymentAccount) { a.Countries = "de,at" }),
		stripeAccount(3),
	)
	s := NewSelector(repo, models.StrategyLeastUsed, nil)

	got, err := s.Select(context.Background(), SelectionInput{
		Gateway:     models.GatewayStripe,
		Currency:    "EUR",
		Country:     "FR",
		ExcludedIDs: []uint{3},
	})
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrNoAccountAvailable)

	got, err = s.Select(context.Background(), SelectionInput{
		Gateway:  models.GatewayStripe,
		Currency: "EUR",
		Country:  "DE",
	})
	require.NoError(t, err)
	assert.Equal(t, uint(2), got.ID)
}

func TestSelectAllExcludedReturnsNotFound(t *testing.T) {
	repo := newFakeRepo(stripeAccount(1), stripeAccount(2))
	s := NewSelector(repo, models.StrategyLeastUsed, nil)

	_, err := s.Select(context.Background(), SelectionInput{
		Gateway:     models.GatewayStripe,
		ExcludedIDs: []uint{1, 2},
	})
	assert.ErrorIs(t, err, ErrNoAccountAvailable)
}

func TestSelectRoundRobinRotates(t *testing.T) {
	repo := newFakeRepo(stripeAccount(1), stripeAccount(2), stripeAccount(3))
	s := NewSelector(repo, models.StrategyRoundRobin, &fakeRotation{})

	var picked []uint
	for i := 0; i < 6; i++ {
		got, err := s.Select(context.Background(), SelectionInput{Gateway: models.GatewayStripe})
		require.NoError(t, err)
		picked = append(picked, got.ID)
	}
	assert.Equal(t, []uint{2, 3, 1, 2, 3, 1}, picked)
}

func TestSelectWeightedRespectsWeights(t *testing.T) {
	repo := newFakeRepo(
		stripeAccount(1, func(a *models.PaymentAccount) { a.Weight = 3 }),
		stripeAccount(2, func(a *models.PaymentAccount) { a.Weight = 1 }),
	)
	s := NewSelector(repo, models.StrategyWeighted, nil)

	rolls := []int{0, 1, 2, 3}
	want := []uint{1, 1, 1, 2}
	for i, roll := range rolls {
		s.randIntn = func(int) int { return roll }
		got, err := s.Select(context.Background(), SelectionInput{Gateway: models.GatewayStripe})
		require.NoError(t, err)
		assert.Equal(t, want[i], got.ID, "roll %d", roll)
	}
}

func TestSelectManualTakesHighestPriorityAvailable(t *testing.T) {
	// The repository returns accounts priority-ordered; manual takes the
	// first survivor.
	repo := newFakeRepo(
		stripeAccount(10, func(a *models.PaymentAccount) { a.Priority = 0 }),
		stripeAccount(20, func(a *models.PaymentAccount) { a.Priority = 1 }),
	)
	s := NewSelector(repo, models.StrategyManual, nil)

	got, err := s.Select(context.Background(), SelectionInput{Gateway: models.GatewayStripe})
	require.NoError(t, err)
	assert.Equal(t, uint(10), got.ID)

	got, err = s.Select(context.Background(), SelectionInput{
		Gateway:     models.GatewayStripe,
		ExcludedIDs: []uint{10},
	})
	require.NoError(t, err)
	assert.Equal(t, uint(20), got.ID)
}

func TestSelectionDoesNotTouchCounters(t *testing.T) {
	repo := newFakeRepo(stripeAccount(1))
	s := NewSelector(repo, models.StrategyLeastUsed, nil)

	for i := 0; i < 5; i++ {
		_, err := s.Select(context.Background(), SelectionInput{Gateway: models.GatewayStripe})
		require.NoError(t, err)
	}
	assert.Empty(t, repo.successes)
	assert.Empty(t, repo.failures)
}

func TestLeastUsedFairnessSpreadNeverExceedsOne(t *testing.T) {
	repo := newFakeRepo(stripeAccount(1), stripeAccount(2), stripeAccount(3), stripeAccount(4))
	s := NewSelector(repo, models.StrategyLeastUsed, nil)

	for i := 0; i < 40; i++ {
		got, err := s.Select(context.Background(), SelectionInput{Gateway: models.GatewayStripe})
		require.NoError(t, err)
		require.NoError(t, s.RecordSuccess(context.Background(), got.ID, 1000))

		var min, max uint64
		min = ^uint64(0)
		for _, a := range repo.accounts {
			if a.SuccessfulTransactions < min {
				min = a.SuccessfulTransactions
			}
			if a.SuccessfulTransactions > max {
				max = a.SuccessfulTransactions
			}
		}
		assert.LessOrEqual(t, max-min, uint64(1), "after %d successes", i+1)
	}
}

func TestNormalizeStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "least_used", want: models.StrategyLeastUsed},
		{in: "ROUND_ROBIN", want: models.StrategyRoundRobin},
		{in: " weighted ", want: models.StrategyWeighted},
		{in: "manual", want: models.StrategyManual},
		{in: "bogus", want: models.StrategyLeastUsed},
		{in: "", want: models.StrategyLeastUsed},
	}

	for _, tt := range tests {
		if got := normalizeStrategy(tt.in); got != tt.want {
			t.Fatalf("normalizeStrategy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
