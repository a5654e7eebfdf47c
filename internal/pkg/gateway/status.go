package gateway

import "strings"

// MapStripeSessionStatus maps checkout.session status/payment_status pairs
// to the canonical verdict vocabulary.
func MapStripeSessionStatus(sessionStatus, paymentStatus string) VerdictStatus {
	switch strings.ToLower(strings.TrimSpace(sessionStatus)) {
	case "complete":
		if strings.ToLower(strings.TrimSpace(paymentStatus)) == "unpaid" {
			// Complete sessions can stay unpaid for delayed methods.
			return VerdictPending
		}
		return VerdictCompleted
	case "expired":
		return VerdictFailed
	case "open":
		return VerdictPending
	default:
		return VerdictUnknown
	}
}

// MapStripeIntentStatus maps payment_intent statuses to verdicts.
func MapStripeIntentStatus(status string) VerdictStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "succeeded":
		return VerdictCompleted
	case "canceled":
		return VerdictFailed
	case "processing", "requires_payment_method", "requires_confirmation", "requires_action", "requires_capture":
		return VerdictPending
	default:
		return VerdictUnknown
	}
}

// MapPayPalOrderStatus maps PayPal order statuses to verdicts.
func MapPayPalOrderStatus(status string) VerdictStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED":
		return VerdictCompleted
	case "VOIDED":
		return VerdictFailed
	case "CREATED", "SAVED", "APPROVED", "PAYER_ACTION_REQUIRED":
		return VerdictPending
	default:
		return VerdictUnknown
	}
}
