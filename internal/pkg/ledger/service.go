package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/notifications"
)

var (
	// ErrNotFound is returned when the payment does not exist.
	ErrNotFound = errors.New("ledger: payment not found")
	// ErrNotCompleted is returned when a refund is requested for a payment
	// that never settled.
	ErrNotCompleted = errors.New("ledger: original payment is not completed")
	// ErrRefundExceedsAmount is returned when the requested refund would
	// exceed the settled amount minus prior refunds.
	ErrRefundExceedsAmount = errors.New("ledger: refund exceeds refundable amount")
)

// SubscriptionMaterializer is the subscription engine seam. Materialize is
// idempotent for an already-linked payment; HandleFailedRenewal moves the
// target subscription into its grace window.
type SubscriptionMaterializer interface {
	Materialize(ctx context.Context, payment *models.Payment) (*models.Subscription, error)
	HandleFailedRenewal(ctx context.Context, payment *models.Payment) error
}

// AccountRecorder records settlement outcomes on the owning account.
type AccountRecorder interface {
	RecordSuccess(ctx context.Context, accountID uint, amount int64) error
	RecordFailure(ctx context.Context, accountID uint) error
}

// CreateInput describes a new checkout attempt.
type CreateInput struct {
	Amount        int64
	Currency      string
	Gateway       string
	CustomerEmail string
	CustomerPhone string
	AccountID     uint
	PlanID        *uint
	Kind          string
	IsRenewal     bool
	// RenewalTargetID carries the explicit renewal target when known. The
	// engine falls back to a best-effort email match when it is absent.
	RenewalTargetID *uint
}

// Ledger owns the payment entity and its state transitions. It is the
// single authority for "is this payment settled": every notification
// channel (webhook, browser return, recovery scan) goes through the same
// idempotent transition operations here.
type Ledger struct {
	repo          Repository
	subscriptions SubscriptionMaterializer
	accounts      AccountRecorder
	notifier      notifications.Notifier
	locks         *keyedLocks

	now func() time.Time
}

// New creates a payment ledger.
func New(repo Repository, subscriptions SubscriptionMaterializer, accounts AccountRecorder, notifier notifications.Notifier) *Ledger {
	return &Ledger{
		repo:          repo,
		subscriptions: subscriptions,
		accounts:      accounts,
		notifier:      notifier,
		locks:         newKeyedLocks(),
		now:           time.Now,
	}
}

// NewFromDB creates a ledger from a GORM DB handle.
func NewFromDB(db *gorm.DB, subscriptions SubscriptionMaterializer, accounts AccountRecorder, notifier notifications.Notifier) *Ledger {
	return New(NewRepository(db), subscriptions, accounts, notifier)
}

// CreatePending creates the payment row for a new checkout attempt. The
// payment must always have an owning account; a checkout that cannot be
// assigned one fails before this call.
func (l *Ledger) CreatePending(ctx context.Context, in CreateInput) (*models.Payment, error) {
	_ = ctx
	if in.Amount <= 0 {
		return nil, errors.New("ledger: amount must be positive")
	}
	if in.AccountID == 0 {
		return nil, errors.New("ledger: owning account is required")
	}
	email := strings.ToLower(strings.TrimSpace(in.CustomerEmail))
	if email == "" {
		return nil, errors.New("ledger: customer email is required")
	}

	kind := in.Kind
	if kind == "" {
		kind = models.PaymentKindPurchase
	}
	if in.IsRenewal {
		kind = models.PaymentKindRenewal
	}

	payment := &models.Payment{
		PublicID:        uuid.New().String(),
		Amount:          in.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(in.Currency)),
		Gateway:         strings.ToLower(strings.TrimSpace(in.Gateway)),
		Status:          models.PaymentStatusPending,
		Kind:            kind,
		CustomerEmail:   email,
		CustomerPhone:   strings.TrimSpace(in.CustomerPhone),
		AccountID:       in.AccountID,
		PlanID:          in.PlanID,
		IsRenewal:       in.IsRenewal,
		RenewalTargetID: in.RenewalTargetID,
	}
	if payment.Currency == "" {
		payment.Currency = "EUR"
	}
	if err := l.repo.Create(payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// AttachGatewayRefs stores the external references once the gateway has
// returned them.
func (l *Ledger) AttachGatewayRefs(ctx context.Context, paymentID uint, sessionRef, intentRef string) error {
	_ = ctx
	updates := map[string]interface{}{}
	if sessionRef != "" {
		updates["session_ref"] = sessionRef
	}
	if intentRef != "" {
		updates["intent_ref"] = intentRef
	}
	if len(updates) == 0 {
		return nil
	}
	return l.repo.UpdateFields(paymentID, updates)
}

// GetByPublicID resolves a payment by its public identifier.
func (l *Ledger) GetByPublicID(ctx context.Context, publicID string) (*models.Payment, error) {
	_ = ctx
	payment, err := l.repo.GetByPublicID(publicID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return payment, err
}

// GetBySessionRef resolves a payment by gateway session reference, used by
// webhook handlers.
func (l *Ledger) GetBySessionRef(ctx context.Context, gateway, sessionRef string) (*models.Payment, error) {
	_ = ctx
	payment, err := l.repo.GetBySessionRef(gateway, sessionRef)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return payment, err
}

// MarkCompleted settles a pending payment. Calling it on an already
// terminal payment is a successful no-op: the same webhook can arrive
// several times, and a webhook can race a recovery scan. Whoever loses the
// conditional update simply does nothing.
func (l *Ledger) MarkCompleted(ctx context.Context, paymentID uint, gatewayData map[string]interface{}) error {
	release := l.locks.acquire(paymentID)
	defer release()

	payment, err := l.repo.GetByID(paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	if payment.Status != models.PaymentStatusPending {
		// Heal a completed payment whose subscription cascade was
		// interrupted; Materialize no-ops when a link already exists.
		if payment.Status == models.PaymentStatusCompleted && payment.SubscriptionID == nil && payment.Kind != models.PaymentKindRefund {
			l.materialize(ctx, payment)
		}
		return nil
	}

	now := l.now()
	payment.MergeResponseData(gatewayData)
	updates := map[string]interface{}{
		"status":        models.PaymentStatusCompleted,
		"paid_at":       now,
		"confirmed_at":  now,
		"response_json": payment.ResponseJSON,
	}

	changed, err := l.repo.TransitionStatus(payment.ID, models.PaymentStatusPending, updates)
	if err != nil {
		return err
	}
	if !changed {
		// Another writer won between our read and the conditional update.
		return nil
	}

	payment.Status = models.PaymentStatusCompleted
	payment.PaidAt = &now
	payment.ConfirmedAt = &now

	if payment.Kind != models.PaymentKindRefund {
		l.materialize(ctx, payment)
	}

	if err := l.accounts.RecordSuccess(ctx, payment.AccountID, payment.Amount); err != nil {
		log.Warnf("[Ledger] record success on account %d failed: %v", payment.AccountID, err)
	}

	notifications.Dispatch(l.notifier, notifications.Event{
		Type:          notifications.EventPaymentCompleted,
		PaymentID:     payment.ID,
		CustomerEmail: payment.CustomerEmail,
		Data:          map[string]interface{}{"amount": payment.Amount, "currency": payment.Currency},
	})
	return nil
}

// MarkFailed records a terminal gateway failure. Same idempotency contract
// as MarkCompleted.
func (l *Ledger) MarkFailed(ctx context.Context, paymentID uint, reason string) error {
	release := l.locks.acquire(paymentID)
	defer release()

	payment, err := l.repo.GetByID(paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if payment.Status != models.PaymentStatusPending {
		return nil
	}

	changed, err := l.repo.TransitionStatus(payment.ID, models.PaymentStatusPending, map[string]interface{}{
		"status":         models.PaymentStatusFailed,
		"failure_reason": strings.TrimSpace(reason),
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if err := l.accounts.RecordFailure(ctx, payment.AccountID); err != nil {
		log.Warnf("[Ledger] record failure on account %d failed: %v", payment.AccountID, err)
	}

	if payment.IsRenewal && l.subscriptions != nil {
		if err := l.subscriptions.HandleFailedRenewal(ctx, payment); err != nil {
			log.Warnf("[Ledger] past-due handling for payment %d failed: %v", payment.ID, err)
		}
	}

	notifications.Dispatch(l.notifier, notifications.Event{
		Type:          notifications.EventPaymentFailed,
		PaymentID:     payment.ID,
		CustomerEmail: payment.CustomerEmail,
		Data:          map[string]interface{}{"reason": reason},
	})
	return nil
}

// MarkCancelled handles the explicit user-cancel path (abandoned checkout).
// Cancellations do not count as gateway failures on the account.
func (l *Ledger) MarkCancelled(ctx context.Context, paymentID uint) error {
	_ = ctx
	release := l.locks.acquire(paymentID)
	defer release()

	payment, err := l.repo.GetByID(paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if payment.Status != models.PaymentStatusPending {
		return nil
	}

	_, err = l.repo.TransitionStatus(payment.ID, models.PaymentStatusPending, map[string]interface{}{
		"status": models.PaymentStatusCancelled,
	})
	return err
}

// CreateRefund creates a refund payment row linked to a completed original.
// The original keeps its completed status and amount so the audit trail
// stays immutable.
func (l *Ledger) CreateRefund(ctx context.Context, originalPaymentID uint, amount int64) (*models.Payment, error) {
	_ = ctx
	release := l.locks.acquire(originalPaymentID)
	defer release()

	original, err := l.repo.GetByID(originalPaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if original.Status != models.PaymentStatusCompleted {
		return nil, ErrNotCompleted
	}
	if amount <= 0 {
		amount = original.Amount
	}

	refunded, err := l.repo.SumRefunded(original.ID)
	if err != nil {
		return nil, err
	}
	if amount > original.Amount-refunded {
		return nil, fmt.Errorf("%w: requested=%d refundable=%d", ErrRefundExceedsAmount, amount, original.Amount-refunded)
	}

	refund := &models.Payment{
		PublicID:          uuid.New().String(),
		Amount:            amount,
		Currency:          original.Currency,
		Gateway:           original.Gateway,
		Status:            models.PaymentStatusPending,
		Kind:              models.PaymentKindRefund,
		CustomerEmail:     original.CustomerEmail,
		CustomerPhone:     original.CustomerPhone,
		AccountID:         original.AccountID,
		PlanID:            original.PlanID,
		OriginalPaymentID: &original.ID,
	}
	if err := l.repo.Create(refund); err != nil {
		return nil, err
	}

	notifications.Dispatch(l.notifier, notifications.Event{
		Type:          notifications.EventPaymentRefunded,
		PaymentID:     refund.ID,
		CustomerEmail: refund.CustomerEmail,
		Data:          map[string]interface{}{"original_payment_id": original.ID, "amount": amount},
	})
	return refund, nil
}

func (l *Ledger) materialize(ctx context.Context, payment *models.Payment) {
	if l.subscriptions == nil {
		return
	}
	if _, err := l.subscriptions.Materialize(ctx, payment); err != nil {
		// Settlement is already committed; the subscription cascade is
		// healed by the next MarkCompleted no-op or a recovery run.
		log.Errorf("[Ledger] materialize subscription for payment %d failed: %v", payment.ID, err)
	}
}
