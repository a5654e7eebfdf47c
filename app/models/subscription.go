package models

import "time"

// Subscription status constants.
const (
	SubscriptionStatusTrial               = "trial"
	SubscriptionStatusActive              = "active"
	SubscriptionStatusPastDue             = "past_due"
	SubscriptionStatusPaused              = "paused"
	SubscriptionStatusCancelled           = "cancelled"
	SubscriptionStatusExpired             = "expired"
	SubscriptionStatusPendingCancellation = "pending_cancellation"
)

// Subscription is the entitlement granted by a completed payment. The plan
// terms are embedded as a snapshot taken at purchase time; the live Plan row
// is only consulted when a plan change is requested. A payment creates at
// most one subscription; the unique payment index enforces that across
// concurrent settlement writers.
type Subscription struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	PublicID              string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"public_id"`
	CustomerEmail         string     `gorm:"type:varchar(200);not null;index" json:"customer_email"`
	PaymentID             uint       `gorm:"not null;uniqueIndex:ux_subscriptions_payment_id" json:"payment_id"`
	Status                string     `gorm:"type:varchar(32);not null;default:'active';index:idx_subscriptions_status_expires,priority:1" json:"status"`
	StartsAt              time.Time  `gorm:"not null" json:"starts_at"`
	ExpiresAt             time.Time  `gorm:"not null;index:idx_subscriptions_status_expires,priority:2" json:"expires_at"`
	NextBillingAt         *time.Time `gorm:"type:timestamp;default:null" json:"next_billing_at,omitempty"`
	BillingCycleCount     int        `gorm:"default:1" json:"billing_cycle_count"`
	IsTrial               bool       `gorm:"default:false" json:"is_trial"`
	TrialEndsAt           *time.Time `gorm:"type:timestamp;default:null" json:"trial_ends_at,omitempty"`
	GraceEndsAt           *time.Time `gorm:"type:timestamp;default:null" json:"grace_ends_at,omitempty"`
	PausedAt              *time.Time `gorm:"type:timestamp;default:null" json:"paused_at,omitempty"`
	CancelledAt           *time.Time `gorm:"type:timestamp;default:null" json:"cancelled_at,omitempty"`
	CancelReason          string     `gorm:"type:varchar(200);default:''" json:"cancel_reason"`
	WillCancelAtPeriodEnd bool       `gorm:"default:false" json:"will_cancel_at_period_end"`
	PendingPlanID         *uint      `gorm:"default:null" json:"pending_plan_id,omitempty"`

	// Plan snapshot, frozen at purchase time.
	PlanID           uint   `gorm:"not null;index" json:"plan_id"`
	PlanName         string `gorm:"type:varchar(100);not null" json:"plan_name"`
	PlanPrice        int64  `gorm:"not null" json:"plan_price"`
	PlanCurrency     string `gorm:"type:varchar(3);not null;default:'EUR'" json:"plan_currency"`
	PlanDurationDays int    `gorm:"not null;default:30" json:"plan_duration_days"`
	PlanInterval     string `gorm:"type:varchar(16);not null;default:'month'" json:"plan_interval"`
	PlanTrialDays    int    `gorm:"default:0" json:"plan_trial_days"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the subscription reached a final state.
func (s *Subscription) IsTerminal() bool {
	switch s.Status {
	case SubscriptionStatusCancelled, SubscriptionStatusExpired:
		return true
	default:
		return false
	}
}

// IsUsable reports whether the entitlement is currently serviceable. A
// past_due subscription inside its grace window still counts.
func (s *Subscription) IsUsable(now time.Time) bool {
	switch s.Status {
	case SubscriptionStatusTrial, SubscriptionStatusActive, SubscriptionStatusPendingCancellation:
		return now.Before(s.ExpiresAt)
	case SubscriptionStatusPastDue:
		return s.GraceEndsAt != nil && now.Before(*s.GraceEndsAt)
	default:
		return false
	}
}

// Duration returns the snapshot plan duration.
func (s *Subscription) Duration() time.Duration {
	days := s.PlanDurationDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}
