package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/notifications"
)

// memRepo implements Repository in memory with the same conditional-update
// semantics as the SQL version: TransitionStatus only writes when the row
// still has the expected status.
type memRepo struct {
	mu       sync.Mutex
	payments map[uint]*models.Payment
	nextID   uint
}

func newMemRepo() *memRepo {
	return &memRepo{payments: map[uint]*models.Payment{}, nextID: 1}
}

func (m *memRepo) Create(payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment.ID = m.nextID
	m.nextID++
	copied := *payment
	m.payments[payment.ID] = &copied
	return nil
}

func (m *memRepo) GetByID(id uint) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *memRepo) GetByPublicID(publicID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.PublicID == publicID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memRepo) GetBySessionRef(gateway, sessionRef string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.Gateway == gateway && p.SessionRef != nil && *p.SessionRef == sessionRef {
			copied := *p
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memRepo) TransitionStatus(id uint, fromStatus string, updates map[string]interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.Status != fromStatus {
		return false, nil
	}
	m.apply(p, updates)
	return true, nil
}

func (m *memRepo) UpdateFields(id uint, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.apply(p, updates)
	return nil
}

func (m *memRepo) apply(p *models.Payment, updates map[string]interface{}) {
	for key, value := range updates {
		switch key {
		case "status":
			p.Status = value.(string)
		case "failure_reason":
			p.FailureReason = value.(string)
		case "response_json":
			p.ResponseJSON = value.(string)
		case "session_ref":
			ref := value.(string)
			p.SessionRef = &ref
		case "intent_ref":
			ref := value.(string)
			p.IntentRef = &ref
		case "paid_at":
			at := value.(time.Time)
			p.PaidAt = &at
		case "confirmed_at":
			at := value.(time.Time)
			p.ConfirmedAt = &at
		}
	}
}

func (m *memRepo) SumRefunded(originalPaymentID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, p := range m.payments {
		if p.Kind == models.PaymentKindRefund &&
			p.OriginalPaymentID != nil && *p.OriginalPaymentID == originalPaymentID &&
			p.Status != models.PaymentStatusFailed && p.Status != models.PaymentStatusCancelled {
			sum += p.Amount
		}
	}
	return sum, nil
}

func (m *memRepo) ListPendingBetween(createdAfter, createdBefore time.Time, limit int) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.payments {
		if p.Status != models.PaymentStatusPending || !p.HasGatewayRef() {
			continue
		}
		if p.CreatedAt.After(createdAfter) && p.CreatedAt.Before(createdBefore) {
			out = append(out, *p)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type countingEngine struct {
	mu           sync.Mutex
	repo         *memRepo
	materialized []uint
	pastDue      []uint
	nextSubID    uint
}

func (c *countingEngine) Materialize(_ context.Context, payment *models.Payment) (*models.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if payment.SubscriptionID != nil {
		return &models.Subscription{ID: *payment.SubscriptionID}, nil
	}
	c.nextSubID++
	c.materialized = append(c.materialized, payment.ID)
	id := c.nextSubID
	payment.SubscriptionID = &id
	// Mirror the real engine, which persists the link on the payment row.
	c.repo.mu.Lock()
	if stored, ok := c.repo.payments[payment.ID]; ok {
		stored.SubscriptionID = &id
	}
	c.repo.mu.Unlock()
	return &models.Subscription{ID: id}, nil
}

func (c *countingEngine) HandleFailedRenewal(_ context.Context, payment *models.Payment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pastDue = append(c.pastDue, payment.ID)
	return nil
}

type countingAccounts struct {
	mu        sync.Mutex
	successes []uint
	failures  []uint
}

func (c *countingAccounts) RecordSuccess(_ context.Context, accountID uint, _ int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes = append(c.successes, accountID)
	return nil
}

func (c *countingAccounts) RecordFailure(_ context.Context, accountID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, accountID)
	return nil
}

type ledgerFixture struct {
	ledger   *Ledger
	repo     *memRepo
	engine   *countingEngine
	accounts *countingAccounts
}

func newFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	repo := newMemRepo()
	engine := &countingEngine{repo: repo}
	accounts := &countingAccounts{}
	l := New(repo, engine, accounts, notifications.NewLogNotifier())
	l.now = func() time.Time { return time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC) }
	return &ledgerFixture{ledger: l, repo: repo, engine: engine, accounts: accounts}
}

func (f *ledgerFixture) createPending(t *testing.T) *models.Payment {
	t.Helper()
	payment, err := f.ledger.CreatePending(context.Background(), CreateInput{
		Amount:        2999,
		Currency:      "eur",
		Gateway:       "Stripe",
		CustomerEmail: "Kunde@Example.com",
		AccountID:     1,
	})
	require.NoError(t, err)
	return payment
}

func TestCreatePendingNormalizesInput(t *testing.T) {
	f := newFixture(t)

	payment := f.createPending(t)

	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Equal(t, models.PaymentKindPurchase, payment.Kind)
	assert.Equal(t, "EUR", payment.Currency)
	assert.Equal(t, "stripe", payment.Gateway)
	assert.Equal(t, "kunde@example.com", payment.CustomerEmail)
	assert.NotEmpty(t, payment.PublicID)
}

func TestCreatePendingValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.CreatePending(ctx, CreateInput{Amount: 0, AccountID: 1, CustomerEmail: "a@b.de"})
	assert.Error(t, err)

	_, err = f.ledger.CreatePending(ctx, CreateInput{Amount: 100, AccountID: 0, CustomerEmail: "a@b.de"})
	assert.Error(t, err)

	_, err = f.ledger.CreatePending(ctx, CreateInput{Amount: 100, AccountID: 1, CustomerEmail: "  "})
	assert.Error(t, err)
}

func TestMarkCompletedSettlesAndCascades(t *testing.T) {
	f := newFixture(t)
	payment := f.createPending(t)

	err := f.ledger.MarkCompleted(context.Background(), payment.ID, map[string]interface{}{"session_status": "complete"})

	require.NoError(t, err)
	stored, err := f.repo.GetByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, stored.Status)
	require.NotNil(t, stored.PaidAt)
	assert.Contains(t, stored.ResponseJSON, "session_status")
	assert.Equal(t, []uint{payment.ID}, f.engine.materialized)
	assert.Equal(t, []uint{uint(1)}, f.accounts.successes)
}

func TestMarkCompletedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	payment := f.createPending(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.MarkCompleted(ctx, payment.ID, nil))
	require.NoError(t, f.ledger.MarkCompleted(ctx, payment.ID, nil))
	require.NoError(t, f.ledger.MarkCompleted(ctx, payment.ID, nil))

	// Exactly one subscription and one counter bump no matter how many
	// times the webhook fires.
	assert.Len(t, f.engine.materialized, 1)
	assert.Len(t, f.accounts.successes, 1)
}

func TestMarkCompletedConcurrentCallersSettleOnce(t *testing.T) {
	f := newFixture(t)
	payment := f.createPending(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.ledger.MarkCompleted(ctx, payment.ID, nil)
		}()
	}
	wg.Wait()

	assert.Len(t, f.engine.materialized, 1)
	assert.Len(t, f.accounts.successes, 1)
	stored, err := f.repo.GetByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, stored.Status)
}

func TestTerminalStatesAreMonotone(t *testing.T) {
	f := newFixture(t)
	payment := f.createPending(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.MarkFailed(ctx, payment.ID, "card declined"))
	// A late success report must not resurrect a failed payment.
	require.NoError(t, f.ledger.MarkCompleted(ctx, payment.ID, nil))

	stored, err := f.repo.GetByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, stored.Status)
	assert.Equal(t, "card declined", stored.FailureReason)
	assert.Empty(t, f.engine.materialized)
	assert.Equal(t, []uint{uint(1)}, f.accounts.failures)
	assert.Empty(t, f.accounts.successes)
}

func TestMarkCompletedHealsMissingSubscription(t *testing.T) {
	f := newFixture(t)
	payment := f.createPending(t)
	ctx := context.Background()

	// Simulate a settled payment whose cascade was interrupted before the
	// subscription link was written.
	_, err := f.repo.TransitionStatus(payment.ID, models.PaymentStatusPending, map[string]interface{}{
		"status": models.PaymentStatusCompleted,
	})
	require.NoError(t, err)

	require.NoError(t, f.ledger.MarkCompleted(ctx, payment.ID, nil))

	assert.Equal(t, []uint{payment.ID}, f.engine.materialized)
	// The heal does not double-count account success.
	assert.Empty(t, f.accounts.successes)
}

func TestMarkFailedRenewalEntersPastDueHandling(t *testing.T) {
	f := newFixture(t)
	target := uint(7)
	payment, err := f.ledger.CreatePending(context.Background(), CreateInput{
		Amount:          999,
		Gateway:         "stripe",
		CustomerEmail:   "kunde@example.com",
		AccountID:       1,
		IsRenewal:       true,
		RenewalTargetID: &target,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentKindRenewal, payment.Kind)

	require.NoError(t, f.ledger.MarkFailed(context.Background(), payment.ID, "insufficient funds"))

	assert.Equal(t, []uint{payment.ID}, f.engine.pastDue)
}

func TestMarkCancelledSkipsAccountFailure(t *testing.T) {
	f := newFixture(t)
	payment := f.createPending(t)

	require.NoError(t, f.ledger.MarkCancelled(context.Background(), payment.ID))

	stored, err := f.repo.GetByID(payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCancelled, stored.Status)
	assert.Empty(t, f.accounts.failures)
}

func TestMarkCompletedUnknownPayment(t *testing.T) {
	f := newFixture(t)

	err := f.ledger.MarkCompleted(context.Background(), 999, nil)

	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCreateRefundBounds(t *testing.T) {
	f := newFixture(t)
	payment := f.createPending(t)
	ctx := context.Background()

	_, err := f.ledger.CreateRefund(ctx, payment.ID, 100)
	assert.True(t, errors.Is(err, ErrNotCompleted))

	require.NoError(t, f.ledger.MarkCompleted(ctx, payment.ID, nil))

	first, err := f.ledger.CreateRefund(ctx, payment.ID, 2000)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentKindRefund, first.Kind)
	assert.Equal(t, int64(2000), first.Amount)
	require.NotNil(t, first.OriginalPaymentID)
	assert.Equal(t, payment.ID, *first.OriginalPaymentID)

	// Remaining refundable is 999; asking for 1000 must fail.
	_, err = f.ledger.CreateRefund(ctx, payment.ID, 1000)
	assert.True(t, errors.Is(err, ErrRefundExceedsAmount))

	second, err := f.ledger.CreateRefund(ctx, payment.ID, 999)
	require.NoError(t, err)
	assert.Equal(t, int64(999), second.Amount)

	// Fully refunded: the zero-amount default (full refund) must fail too.
	_, err = f.ledger.CreateRefund(ctx, payment.ID, 0)
	assert.True(t, errors.Is(err, ErrRefundExceedsAmount))
}

func TestRefundDoesNotMaterialize(t *testing.T) {
	f := newFixture(t)
	payment := f.createPending(t)
	ctx := context.Background()
	require.NoError(t, f.ledger.MarkCompleted(ctx, payment.ID, nil))

	refund, err := f.ledger.CreateRefund(ctx, payment.ID, 500)
	require.NoError(t, err)
	require.NoError(t, f.ledger.MarkCompleted(ctx, refund.ID, nil))

	// Only the original purchase created a subscription.
	assert.Equal(t, []uint{payment.ID}, f.engine.materialized)
}

func TestAttachGatewayRefs(t *testing.T) {
	f := newFixture(t)
	payment := f.createPending(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.AttachGatewayRefs(ctx, payment.ID, "cs_test_123", "pi_test_456"))

	stored, err := f.ledger.GetBySessionRef(ctx, "stripe", "cs_test_123")
	require.NoError(t, err)
	assert.Equal(t, payment.ID, stored.ID)
	require.NotNil(t, stored.IntentRef)
	assert.Equal(t, "pi_test_456", *stored.IntentRef)
}
