package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
)

// Kind is the closed set of supported gateway types. The kind is resolved
// once from the account's gateway name; everything downstream switches on
// the tagged value instead of raw strings.
type Kind string

const (
	KindStripe  Kind = "stripe"
	KindPayPal  Kind = "paypal"
	KindUnknown Kind = "unknown"
)

// VerdictStatus is the canonical reconciliation outcome vocabulary.
type VerdictStatus string

const (
	VerdictCompleted VerdictStatus = "completed"
	VerdictFailed    VerdictStatus = "failed"
	VerdictPending   VerdictStatus = "pending"
	VerdictUnknown   VerdictStatus = "unknown"
)

// Verdict is the mapped result of asking a gateway for ground truth about
// one payment. Unknown means "nothing to check" (no reference, unsupported
// kind, or the gateway does not know the reference) and must never be
// treated as failed by callers.
type Verdict struct {
	Status       VerdictStatus
	NativeStatus string
	Raw          map[string]interface{}
}

// ErrGatewayUnreachable wraps transport/auth failures. It is a distinct
// outcome from any verdict: the caller retries later and performs no state
// transition.
var ErrGatewayUnreachable = errors.New("gateway: unreachable")

// Reconciler looks up the authoritative status of a payment on its gateway.
type Reconciler interface {
	CheckStatus(ctx context.Context, payment *models.Payment, account *models.PaymentAccount) (*Verdict, error)
}

// KindOf resolves a gateway name to its tagged kind.
func KindOf(gateway string) Kind {
	switch strings.ToLower(strings.TrimSpace(gateway)) {
	case models.GatewayStripe:
		return KindStripe
	case models.GatewayPayPal:
		return KindPayPal
	default:
		return KindUnknown
	}
}

// ForAccount returns the reconciler matching the account's gateway kind,
// or nil when the kind is unsupported (callers report verdict unknown).
func ForAccount(account *models.PaymentAccount) Reconciler {
	switch KindOf(account.Gateway) {
	case KindStripe:
		return NewStripeReconciler()
	case KindPayPal:
		return NewPayPalReconcilerFromEnv()
	default:
		return nil
	}
}

// UnknownVerdict builds the no-op verdict with an explanatory note in Raw.
func UnknownVerdict(reason string) *Verdict {
	return &Verdict{
		Status: VerdictUnknown,
		Raw:    map[string]interface{}{"reason": reason},
	}
}
