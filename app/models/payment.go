package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payment status constants. Transitions are monotone: pending is the only
// non-terminal state, the others are final.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
)

// Payment kind constants. Refunds are separate payment rows linked to the
// original via OriginalPaymentID so the completed amount stays auditable.
const (
	PaymentKindPurchase = "purchase"
	PaymentKindRenewal  = "renewal"
	PaymentKindRefund   = "refund"
)

// Payment records one checkout attempt. Rows are never deleted; status is
// mutated exclusively through the ledger transition operations.
type Payment struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	PublicID          string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"public_id"`
	Amount            int64      `gorm:"not null" json:"amount"`
	Currency          string     `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`
	Gateway           string     `gorm:"type:varchar(20);not null" json:"gateway"`
	SessionRef        *string    `gorm:"type:varchar(191);default:null;index" json:"session_ref,omitempty"`
	IntentRef         *string    `gorm:"type:varchar(191);default:null;index" json:"intent_ref,omitempty"`
	Status            string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_payments_status_created,priority:1" json:"status"`
	Kind              string     `gorm:"type:varchar(20);not null;default:'purchase'" json:"kind"`
	CustomerEmail     string     `gorm:"type:varchar(200);not null;index" json:"customer_email"`
	CustomerPhone     string     `gorm:"type:varchar(50);default:''" json:"customer_phone"`
	AccountID         uint       `gorm:"not null;index" json:"account_id"`
	Account           *PaymentAccount `gorm:"foreignKey:AccountID" json:"-"`
	PlanID            *uint      `gorm:"default:null" json:"plan_id,omitempty"`
	SubscriptionID    *uint      `gorm:"default:null;index" json:"subscription_id,omitempty"`
	RenewalTargetID   *uint      `gorm:"default:null" json:"renewal_target_id,omitempty"`
	OriginalPaymentID *uint      `gorm:"default:null;index" json:"original_payment_id,omitempty"`
	IsRenewal         bool       `gorm:"default:false" json:"is_renewal"`
	ResponseJSON      string     `gorm:"type:longtext" json:"response_json"`
	FailureReason     string     `gorm:"type:text" json:"failure_reason"`
	PaidAt            *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	ConfirmedAt       *time.Time `gorm:"type:timestamp;default:null" json:"confirmed_at,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime;index:idx_payments_status_created,priority:2" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the payment reached a final state.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	default:
		return false
	}
}

// HasGatewayRef reports whether at least one external reference exists that
// a reconciler could look up.
func (p *Payment) HasGatewayRef() bool {
	return (p.SessionRef != nil && *p.SessionRef != "") ||
		(p.IntentRef != nil && *p.IntentRef != "")
}

// ResponseSnapshot decodes the stored gateway response snapshot. A missing
// or invalid snapshot yields an empty map, never an error.
func (p *Payment) ResponseSnapshot() map[string]interface{} {
	snapshot := map[string]interface{}{}
	if p.ResponseJSON == "" {
		return snapshot
	}
	if err := json.Unmarshal([]byte(p.ResponseJSON), &snapshot); err != nil {
		return map[string]interface{}{}
	}
	return snapshot
}

// MergeResponseData merges new gateway data into the snapshot additively.
// Existing keys are kept; a colliding new value is stored under the first
// free numbered key so earlier records are never silently overwritten.
func (p *Payment) MergeResponseData(data map[string]interface{}) {
	if len(data) == 0 {
		return
	}
	snapshot := p.ResponseSnapshot()
	for key, value := range data {
		if existing, ok := snapshot[key]; ok {
			if equalJSONValue(existing, value) {
				continue
			}
			key = nextFreeKey(snapshot, key)
		}
		snapshot[key] = value
	}
	if encoded, err := json.Marshal(snapshot); err == nil {
		p.ResponseJSON = string(encoded)
	}
}

func nextFreeKey(snapshot map[string]interface{}, key string) string {
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", key, i)
		if _, ok := snapshot[candidate]; !ok {
			return candidate
		}
	}
}

func equalJSONValue(a, b interface{}) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(aj) == string(bj)
}
