package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/gateway"
)

// Defaults for the scan window and pacing. The lower age bound avoids
// racing payments still in their normal processing window; the upper bound
// stops wasting gateway calls on checkouts the customer abandoned long ago.
const (
	DefaultMinAge      = 10 * time.Minute
	DefaultMaxAge      = 48 * time.Hour
	DefaultLimit       = 100
	DefaultDelay       = 500 * time.Millisecond
	DefaultCallTimeout = 20 * time.Second
)

// ErrNotFound is returned by RecoverPayment for an unknown payment id.
var ErrNotFound = errors.New("recovery: payment not found")

// PaymentStore is the slice of the ledger repository the scanner reads.
type PaymentStore interface {
	ListPendingBetween(createdAfter, createdBefore time.Time, limit int) ([]models.Payment, error)
	GetByID(id uint) (*models.Payment, error)
}

// AccountStore resolves the owning account for credential lookup.
type AccountStore interface {
	GetByID(id uint) (*models.PaymentAccount, error)
}

// Transitioner is the ledger seam: the scanner never writes payment state
// itself, it drives the same idempotent transitions every other channel
// uses.
type Transitioner interface {
	MarkCompleted(ctx context.Context, paymentID uint, gatewayData map[string]interface{}) error
	MarkFailed(ctx context.Context, paymentID uint, reason string) error
}

// AuditStore appends recovery check results to the per-payment audit trail.
type AuditStore interface {
	Append(entry *models.RecoveryLog) error
}

// Options parameterizes one scan run. Zero values fall back to defaults.
type Options struct {
	MinAge time.Duration
	MaxAge time.Duration
	Limit  int
	DryRun bool
}

// Result aggregates one scan run. In dry-run mode Recovered/Failed count
// the would-be transitions.
type Result struct {
	Scanned      int
	Recovered    int
	Failed       int
	StillPending int
	Errors       int
}

// Outcome describes a single-payment recovery.
type Outcome struct {
	PaymentID uint
	Verdict   gateway.VerdictStatus
	Applied   bool
}

// Scanner finds payments stuck in pending past a threshold and drives them
// through gateway reconciliation to resolve or escalate them.
type Scanner struct {
	payments Transitioner
	store    PaymentStore
	accounts AccountStore
	audit    AuditStore

	// reconcilerFor is swapped in tests; defaults to gateway.ForAccount.
	reconcilerFor func(account *models.PaymentAccount) gateway.Reconciler

	Delay       time.Duration
	CallTimeout time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

// NewScanner creates a recovery scanner.
func NewScanner(ledger Transitioner, store PaymentStore, accounts AccountStore, audit AuditStore) *Scanner {
	return &Scanner{
		payments:      ledger,
		store:         store,
		accounts:      accounts,
		audit:         audit,
		reconcilerFor: gateway.ForAccount,
		Delay:         DefaultDelay,
		CallTimeout:   DefaultCallTimeout,
		now:           time.Now,
		sleep:         time.Sleep,
	}
}

// Scan walks pending payments inside the age window and reconciles each
// against its gateway. Dry-run mode shares the exact selection and lookup
// path and only skips the transition calls, so its report is trustworthy.
// One payment's failure never aborts the batch.
func (s *Scanner) Scan(ctx context.Context, opts Options) (Result, error) {
	opts = withDefaults(opts)
	var result Result

	now := s.now()
	candidates, err := s.store.ListPendingBetween(now.Add(-opts.MaxAge), now.Add(-opts.MinAge), opts.Limit)
	if err != nil {
		return result, err
	}

	for i := range candidates {
		if i > 0 && s.Delay > 0 {
			// Deliberate throughput cap to respect gateway rate limits.
			s.sleep(s.Delay)
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		payment := &candidates[i]
		result.Scanned++
		outcome, err := s.checkOne(ctx, payment, opts.DryRun)
		if err != nil {
			result.Errors++
			log.Errorf("[Recovery] payment %d check failed: %v", payment.ID, err)
			continue
		}
		switch outcome.Verdict {
		case gateway.VerdictCompleted:
			result.Recovered++
		case gateway.VerdictFailed:
			result.Failed++
		default:
			result.StillPending++
		}
	}

	log.Infof("[Recovery] scan done: scanned=%d recovered=%d failed=%d still_pending=%d errors=%d dry_run=%v",
		result.Scanned, result.Recovered, result.Failed, result.StillPending, result.Errors, opts.DryRun)
	return result, nil
}

// RecoverPayment reconciles exactly one payment, regardless of the scan
// window. Recovering an already terminal payment is a no-op report.
func (s *Scanner) RecoverPayment(ctx context.Context, paymentID uint) (*Outcome, error) {
	payment, err := s.store.GetByID(paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if payment.IsTerminal() {
		return &Outcome{PaymentID: payment.ID, Verdict: gateway.VerdictStatus(payment.Status), Applied: false}, nil
	}
	return s.checkOne(ctx, payment, false)
}

func (s *Scanner) checkOne(ctx context.Context, payment *models.Payment, dryRun bool) (*Outcome, error) {
	account, err := s.accounts.GetByID(payment.AccountID)
	if err != nil {
		return nil, err
	}

	reconciler := s.reconcilerFor(account)
	if reconciler == nil {
		verdict := gateway.UnknownVerdict("unsupported gateway " + account.Gateway)
		s.appendAudit(payment.ID, verdict, dryRun, "")
		return &Outcome{PaymentID: payment.ID, Verdict: verdict.Status, Applied: false}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.CallTimeout)
	verdict, err := reconciler.CheckStatus(callCtx, payment, account)
	cancel()
	if err != nil {
		// Transient gateway trouble: no verdict, no transition; the next
		// scheduled scan retries.
		s.appendAudit(payment.ID, gateway.UnknownVerdict("gateway error"), dryRun, err.Error())
		return nil, err
	}

	s.appendAudit(payment.ID, verdict, dryRun, "")

	applied := false
	switch verdict.Status {
	case gateway.VerdictCompleted:
		if !dryRun {
			if err := s.payments.MarkCompleted(ctx, payment.ID, verdict.Raw); err != nil {
				return nil, err
			}
			applied = true
		}
	case gateway.VerdictFailed:
		if !dryRun {
			if err := s.payments.MarkFailed(ctx, payment.ID, "gateway reported "+verdict.NativeStatus); err != nil {
				return nil, err
			}
			applied = true
		}
	}

	return &Outcome{PaymentID: payment.ID, Verdict: verdict.Status, Applied: applied}, nil
}

func (s *Scanner) appendAudit(paymentID uint, verdict *gateway.Verdict, dryRun bool, note string) {
	if s.audit == nil {
		return
	}
	raw := ""
	if len(verdict.Raw) > 0 {
		if encoded, err := json.Marshal(verdict.Raw); err == nil {
			raw = string(encoded)
		}
	}
	entry := &models.RecoveryLog{
		PaymentID:    paymentID,
		Verdict:      string(verdict.Status),
		NativeStatus: verdict.NativeStatus,
		RawJSON:      raw,
		DryRun:       dryRun,
		Note:         note,
	}
	if err := s.audit.Append(entry); err != nil {
		log.Warnf("[Recovery] audit append for payment %d failed: %v", paymentID, err)
	}
}

func withDefaults(opts Options) Options {
	if opts.MinAge <= 0 {
		opts.MinAge = DefaultMinAge
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	return opts
}
