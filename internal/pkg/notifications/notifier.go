package notifications

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Event types emitted by the payment and subscription cores.
const (
	EventPaymentCompleted      = "payment_completed"
	EventPaymentFailed         = "payment_failed"
	EventPaymentRefunded       = "payment_refunded"
	EventSubscriptionCreated   = "subscription_created"
	EventSubscriptionRenewed   = "subscription_renewed"
	EventSubscriptionPastDue   = "subscription_past_due"
	EventSubscriptionCancelled = "subscription_cancelled"
	EventSubscriptionExpired   = "subscription_expired"
)

// Event is the payload handed to the outbound notification collaborator.
type Event struct {
	Type           string
	PaymentID      uint
	SubscriptionID uint
	CustomerEmail  string
	Data           map[string]interface{}
}

// Notifier delivers events to the outbound notification system. Delivery is
// best-effort; a failing notifier must never block or fail a payment or
// subscription transition.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type logNotifier struct{}

// NewLogNotifier returns a notifier that only logs events. It is the
// default until a real dispatch collaborator is wired in.
func NewLogNotifier() Notifier {
	return logNotifier{}
}

func (logNotifier) Notify(_ context.Context, event Event) error {
	log.Infof("[Notify] %s payment=%d subscription=%d email=%s",
		event.Type, event.PaymentID, event.SubscriptionID, event.CustomerEmail)
	return nil
}

// Dispatch sends the event fire-and-forget on its own goroutine with a
// bounded timeout. Panics and errors are logged and swallowed.
func Dispatch(notifier Notifier, event Event) {
	if notifier == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("[Notify] panic dispatching %s: %v", event.Type, r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := notifier.Notify(ctx, event); err != nil {
			log.Warnf("[Notify] dispatch %s failed: %v", event.Type, err)
		}
	}()
}
