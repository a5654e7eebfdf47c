package notifications

import (
	"context"
	"fmt"

	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/env"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/mail"
)

type mailNotifier struct {
	fallback Notifier
}

// NewMailNotifier returns a notifier that mails the customer for the
// customer-facing events and logs everything else.
func NewMailNotifier() Notifier {
	return mailNotifier{fallback: NewLogNotifier()}
}

// NewFromEnv picks the mail notifier when an SMTP relay is configured and
// falls back to the log notifier otherwise.
func NewFromEnv() Notifier {
	if env.GetEnv("SMTP_HOST", "") != "" {
		return NewMailNotifier()
	}
	return NewLogNotifier()
}

func (n mailNotifier) Notify(ctx context.Context, event Event) error {
	subject, body, ok := renderMail(event)
	if !ok || event.CustomerEmail == "" {
		return n.fallback.Notify(ctx, event)
	}
	return mail.SendMail(event.CustomerEmail, subject, body)
}

func renderMail(event Event) (subject, body string, ok bool) {
	switch event.Type {
	case EventPaymentCompleted:
		return "Payment received",
			fmt.Sprintf("<p>Your payment of %v %v was received. Thank you.</p>",
				event.Data["amount"], event.Data["currency"]), true
	case EventPaymentFailed:
		return "Payment failed",
			fmt.Sprintf("<p>Your payment could not be processed: %v</p>", event.Data["reason"]), true
	case EventPaymentRefunded:
		return "Refund issued",
			fmt.Sprintf("<p>A refund of %v has been issued to you.</p>", event.Data["amount"]), true
	case EventSubscriptionCreated:
		return "Subscription active",
			fmt.Sprintf("<p>Your subscription %v is active until %v.</p>",
				event.Data["plan"], event.Data["expires_at"]), true
	case EventSubscriptionRenewed:
		return "Subscription renewed",
			fmt.Sprintf("<p>Your subscription was renewed until %v.</p>", event.Data["expires_at"]), true
	case EventSubscriptionPastDue:
		return "Payment problem with your subscription",
			fmt.Sprintf("<p>Your renewal payment failed. Access continues until %v while we retry.</p>",
				event.Data["grace_ends_at"]), true
	case EventSubscriptionExpired:
		return "Subscription expired",
			"<p>Your subscription has expired.</p>", true
	default:
		return "", "", false
	}
}
