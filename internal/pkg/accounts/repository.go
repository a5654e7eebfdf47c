package accounts

import (
	"time"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
	"gorm.io/gorm"
)

// Repository provides DB operations used by the account selector.
type Repository interface {
	ListActiveByGateway(gateway string) ([]models.PaymentAccount, error)
	GetByID(id uint) (*models.PaymentAccount, error)
	RecordSuccess(id uint, amount int64, usedAt time.Time) error
	RecordFailure(id uint, usedAt time.Time) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an account repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) ListActiveByGateway(gateway string) ([]models.PaymentAccount, error) {
	var accounts []models.PaymentAccount
	err := r.db.
		Where("gateway = ? AND active = ?", gateway, true).
		Order("priority ASC, id ASC").
		Find(&accounts).Error
	return accounts, err
}

func (r *gormRepository) GetByID(id uint) (*models.PaymentAccount, error) {
	var account models.PaymentAccount
	if err := r.db.First(&account, id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// RecordSuccess increments the success counters atomically in SQL. Counters
// are never read-modify-written at the application layer because concurrent
// settlements on the same account are expected.
func (r *gormRepository) RecordSuccess(id uint, amount int64, usedAt time.Time) error {
	return r.db.Model(&models.PaymentAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"successful_transactions": gorm.Expr("successful_transactions + 1"),
			"total_amount":            gorm.Expr("total_amount + ?", amount),
			"last_used_at":            usedAt,
		}).Error
}

func (r *gormRepository) RecordFailure(id uint, usedAt time.Time) error {
	return r.db.Model(&models.PaymentAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"failed_transactions": gorm.Expr("failed_transactions + 1"),
			"last_used_at":        usedAt,
		}).Error
}
