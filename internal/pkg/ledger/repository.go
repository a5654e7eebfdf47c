package ledger

import (
	"time"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
	"gorm.io/gorm"
)

// Repository provides DB operations used by the payment ledger.
type Repository interface {
	Create(payment *models.Payment) error
	GetByID(id uint) (*models.Payment, error)
	GetByPublicID(publicID string) (*models.Payment, error)
	GetBySessionRef(gateway, sessionRef string) (*models.Payment, error)
	// TransitionStatus performs the conditional update `SET ... WHERE id = ?
	// AND status = ?` and reports whether a row actually changed. Zero rows
	// affected is the formal idempotent-no-op signal.
	TransitionStatus(id uint, fromStatus string, updates map[string]interface{}) (bool, error)
	UpdateFields(id uint, updates map[string]interface{}) error
	SumRefunded(originalPaymentID uint) (int64, error)
	ListPendingBetween(createdAfter, createdBefore time.Time, limit int) ([]models.Payment, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

func (r *gormRepository) GetByID(id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.First(&payment, id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *gormRepository) GetByPublicID(publicID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.Where("public_id = ?", publicID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *gormRepository) GetBySessionRef(gateway, sessionRef string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.Where("gateway = ? AND session_ref = ?", gateway, sessionRef).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *gormRepository) TransitionStatus(id uint, fromStatus string, updates map[string]interface{}) (bool, error) {
	tx := r.db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) UpdateFields(id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.Payment{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) SumRefunded(originalPaymentID uint) (int64, error) {
	var total int64
	err := r.db.Model(&models.Payment{}).
		Where("original_payment_id = ? AND kind = ? AND status IN ?",
			originalPaymentID, models.PaymentKindRefund,
			[]string{models.PaymentStatusPending, models.PaymentStatusCompleted}).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

func (r *gormRepository) ListPendingBetween(createdAfter, createdBefore time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	q := r.db.
		Where("status = ? AND created_at >= ? AND created_at <= ?",
			models.PaymentStatusPending, createdAfter, createdBefore).
		Where("(session_ref IS NOT NULL AND session_ref != '') OR (intent_ref IS NOT NULL AND intent_ref != '')").
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&payments).Error
	return payments, err
}
