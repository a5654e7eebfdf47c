package models

import "time"

// RecoveryLog is the append-only audit trail of gateway reconciliation
// checks per payment, kept so an operator can see why a webhook was missed
// and what the gateway reported at each check.
type RecoveryLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	PaymentID    uint      `gorm:"not null;index" json:"payment_id"`
	Verdict      string    `gorm:"type:varchar(20);not null" json:"verdict"`
	NativeStatus string    `gorm:"type:varchar(100);default:''" json:"native_status"`
	RawJSON      string    `gorm:"type:longtext" json:"raw_json"`
	DryRun       bool      `gorm:"default:false" json:"dry_run"`
	Note         string    `gorm:"type:text" json:"note"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
