package models

import "time"

// Billing interval constants.
const (
	PlanIntervalMonth = "month"
	PlanIntervalYear  = "year"
	PlanIntervalOnce  = "once"
)

// Plan is the catalog record for a purchasable plan. Subscriptions embed a
// snapshot of these terms at purchase time, so editing a Plan never changes
// historical entitlements.
type Plan struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(100);not null" json:"name"`
	Price        int64     `gorm:"not null" json:"price"`
	Currency     string    `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`
	DurationDays int       `gorm:"not null;default:30" json:"duration_days"`
	Interval     string    `gorm:"type:varchar(16);not null;default:'month'" json:"interval"`
	TrialDays    int       `gorm:"default:0" json:"trial_days"`
	Active       bool      `gorm:"default:true;index" json:"active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsRecurring reports whether the plan renews after its first period.
func (p *Plan) IsRecurring() bool {
	return p.Interval != PlanIntervalOnce
}
