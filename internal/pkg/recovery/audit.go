package recovery

import (
	"gorm.io/gorm"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
)

type gormAudit struct {
	db *gorm.DB
}

// NewGormAudit returns the database-backed recovery audit trail.
func NewGormAudit(db *gorm.DB) AuditStore {
	return &gormAudit{db: db}
}

func (a *gormAudit) Append(entry *models.RecoveryLog) error {
	return a.db.Create(entry).Error
}
