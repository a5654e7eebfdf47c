package gateway

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
)

// CheckoutInput describes a hosted checkout session to create.
type CheckoutInput struct {
	Amount          int64
	Currency        string
	ProductName     string
	PaymentPublicID string
	CustomerEmail   string
	SuccessURL      string
	CancelURL       string
}

// CheckoutSession is the created hosted session the customer is redirected
// to.
type CheckoutSession struct {
	SessionID string
	IntentID  string
	URL       string
}

// CheckoutCreator creates a hosted checkout session on the account's
// gateway.
type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, account *models.PaymentAccount, in CheckoutInput) (*CheckoutSession, error)
}

// StripeCheckout creates Stripe hosted checkout sessions with the owning
// account's own key.
type StripeCheckout struct {
	newSession func(secretKey string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// NewStripeCheckout creates the production checkout creator.
func NewStripeCheckout() *StripeCheckout {
	return &StripeCheckout{
		newSession: func(secretKey string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			api := &client.API{}
			api.Init(secretKey, nil)
			return api.CheckoutSessions.New(params)
		},
	}
}

// CreateCheckoutSession builds a one-off payment session. The payment's
// public id travels in the session metadata and client reference so the
// webhook and the recovery scan can always trace the session back.
func (s *StripeCheckout) CreateCheckoutSession(ctx context.Context, account *models.PaymentAccount, in CheckoutInput) (*CheckoutSession, error) {
	_ = ctx
	if account.SecretKeyEnc == "" {
		return nil, fmt.Errorf("%w: account %d has no stripe secret key", ErrGatewayUnreachable, account.ID)
	}

	name := in.ProductName
	if name == "" {
		name = "Payment"
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(in.SuccessURL),
		CancelURL:         stripe.String(in.CancelURL),
		CustomerEmail:     stripe.String(in.CustomerEmail),
		ClientReferenceID: stripe.String(in.PaymentPublicID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(in.Currency),
					UnitAmount: stripe.Int64(in.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(name),
					},
				},
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"payment_public_id": in.PaymentPublicID},
		},
	}
	params.AddMetadata("payment_public_id", in.PaymentPublicID)

	session, err := s.newSession(account.SecretKeyEnc, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}

	out := &CheckoutSession{SessionID: session.ID, URL: session.URL}
	if session.PaymentIntent != nil {
		out.IntentID = session.PaymentIntent.ID
	}
	return out, nil
}
