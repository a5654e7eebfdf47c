package gateway

import "testing"

func TestMapStripeSessionStatus(t *testing.T) {
	tests := []struct {
		session string
		payment string
		want    VerdictStatus
	}{
		{session: "complete", payment: "paid", want: VerdictCompleted},
		{session: "complete", payment: "no_payment_required", want: VerdictCompleted},
		{session: "complete", payment: "unpaid", want: VerdictPending},
		{session: "expired", payment: "unpaid", want: VerdictFailed},
		{session: "open", payment: "unpaid", want: VerdictPending},
		{session: "something_else", payment: "", want: VerdictUnknown},
	}

	for _, tt := range tests {
		if got := MapStripeSessionStatus(tt.session, tt.payment); got != tt.want {
			t.Fatalf("MapStripeSessionStatus(%q, %q) = %q, want %q", tt.session, tt.payment, got, tt.want)
		}
	}
}

func TestMapStripeIntentStatus(t *testing.T) {
	tests := []struct {
		in   string
		want VerdictStatus
	}{
		{in: "succeeded", want: VerdictCompleted},
		{in: "canceled", want: VerdictFailed},
		{in: "processing", want: VerdictPending},
		{in: "requires_action", want: VerdictPending},
		{in: "requires_capture", want: VerdictPending},
		{in: "weird", want: VerdictUnknown},
	}

	for _, tt := range tests {
		if got := MapStripeIntentStatus(tt.in); got != tt.want {
			t.Fatalf("MapStripeIntentStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMapPayPalOrderStatus(t *testing.T) {
	tests := []struct {
		in   string
		want VerdictStatus
	}{
		{in: "COMPLETED", want: VerdictCompleted},
		{in: "completed", want: VerdictCompleted},
		{in: "VOIDED", want: VerdictFailed},
		{in: "CREATED", want: VerdictPending},
		{in: "APPROVED", want: VerdictPending},
		{in: "PAYER_ACTION_REQUIRED", want: VerdictPending},
		{in: "", want: VerdictUnknown},
	}

	for _, tt := range tests {
		if got := MapPayPalOrderStatus(tt.in); got != tt.want {
			t.Fatalf("MapPayPalOrderStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{in: "stripe", want: KindStripe},
		{in: " Stripe ", want: KindStripe},
		{in: "paypal", want: KindPayPal},
		{in: "square", want: KindUnknown},
		{in: "", want: KindUnknown},
	}

	for _, tt := range tests {
		if got := KindOf(tt.in); got != tt.want {
			t.Fatalf("KindOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
