package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
)

// StripeReconciler resolves checkout-session or payment-intent references
// through the Stripe API using the owning account's secret key.
type StripeReconciler struct {
	// newClient builds a per-account API client; swapped in tests.
	newClient func(secretKey string) stripeAPI
}

type stripeAPI interface {
	GetCheckoutSession(id string) (*stripe.CheckoutSession, error)
	GetPaymentIntent(id string) (*stripe.PaymentIntent, error)
}

type stripeClient struct {
	api *client.API
}

func (c *stripeClient) GetCheckoutSession(id string) (*stripe.CheckoutSession, error) {
	return c.api.CheckoutSessions.Get(id, nil)
}

func (c *stripeClient) GetPaymentIntent(id string) (*stripe.PaymentIntent, error) {
	return c.api.PaymentIntents.Get(id, nil)
}

// NewStripeReconciler creates the production reconciler. Each call builds a
// client from the account's own key, so multiple Stripe accounts never
// share credentials.
func NewStripeReconciler() *StripeReconciler {
	return &StripeReconciler{
		newClient: func(secretKey string) stripeAPI {
			api := &client.API{}
			api.Init(secretKey, nil)
			return &stripeClient{api: api}
		},
	}
}

// CheckStatus prefers the checkout-session reference and falls back to the
// payment-intent reference. Missing references yield verdict unknown;
// transport/auth failures yield an error, never a verdict.
func (r *StripeReconciler) CheckStatus(ctx context.Context, payment *models.Payment, account *models.PaymentAccount) (*Verdict, error) {
	_ = ctx
	if account.SecretKeyEnc == "" {
		return nil, fmt.Errorf("%w: account %d has no stripe secret key", ErrGatewayUnreachable, account.ID)
	}
	api := r.newClient(account.SecretKeyEnc)

	if payment.SessionRef != nil && *payment.SessionRef != "" {
		session, err := api.GetCheckoutSession(*payment.SessionRef)
		if err != nil {
			if isStripeNotFound(err) {
				return UnknownVerdict("stripe checkout session not found"), nil
			}
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
		}
		return sessionVerdict(session), nil
	}

	if payment.IntentRef != nil && *payment.IntentRef != "" {
		intent, err := api.GetPaymentIntent(*payment.IntentRef)
		if err != nil {
			if isStripeNotFound(err) {
				return UnknownVerdict("stripe payment intent not found"), nil
			}
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
		}
		return intentVerdict(intent), nil
	}

	return UnknownVerdict("payment has no stripe reference"), nil
}

func sessionVerdict(session *stripe.CheckoutSession) *Verdict {
	raw := map[string]interface{}{
		"checkout_session_id": session.ID,
		"session_status":      string(session.Status),
		"payment_status":      string(session.PaymentStatus),
	}
	if session.PaymentIntent != nil {
		raw["payment_intent_id"] = session.PaymentIntent.ID
	}
	return &Verdict{
		Status:       MapStripeSessionStatus(string(session.Status), string(session.PaymentStatus)),
		NativeStatus: string(session.Status) + "/" + string(session.PaymentStatus),
		Raw:          raw,
	}
}

func intentVerdict(intent *stripe.PaymentIntent) *Verdict {
	return &Verdict{
		Status:       MapStripeIntentStatus(string(intent.Status)),
		NativeStatus: string(intent.Status),
		Raw: map[string]interface{}{
			"payment_intent_id": intent.ID,
			"intent_status":     string(intent.Status),
			"amount_received":   intent.AmountReceived,
		},
	}
}

func isStripeNotFound(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusNotFound ||
			stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}
