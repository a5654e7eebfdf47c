package subscriptions

import (
	"time"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the subscription engine.
type Repository interface {
	// CreateForPayment inserts the subscription unless one already exists for
	// its creating payment. False means another writer settled the same
	// payment first; the caller loads the existing row instead.
	CreateForPayment(sub *models.Subscription) (bool, error)
	GetByID(id uint) (*models.Subscription, error)
	GetByPublicID(publicID string) (*models.Subscription, error)
	GetByPaymentID(paymentID uint) (*models.Subscription, error)
	Save(sub *models.Subscription) error
	// FindMostRecentActiveByEmail is the best-effort renewal fallback when a
	// payment carries no explicit subscription reference.
	FindMostRecentActiveByEmail(email string) (*models.Subscription, error)
	LinkPayment(paymentID, subscriptionID uint) error
	// ClaimPayment links the payment to the subscription only when no link
	// exists yet. It is the conditional write that makes a renewal apply
	// exactly once under concurrent settlement writers.
	ClaimPayment(paymentID, subscriptionID uint) (bool, error)
	GetPlan(id uint) (*models.Plan, error)
	// ListSweepCandidates returns non-terminal subscriptions that crossed
	// any lifecycle boundary (expiry, grace end, trial end, plan swap due).
	ListSweepCandidates(now time.Time, limit int) ([]models.Subscription, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a subscription repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateForPayment(sub *models.Subscription) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_id"}},
		DoNothing: true,
	}).Create(sub)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) GetByID(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.First(&sub, id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetByPublicID(publicID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("public_id = ?", publicID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) Save(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) FindMostRecentActiveByEmail(email string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("customer_email = ? AND status IN ?", email, []string{
			models.SubscriptionStatusTrial,
			models.SubscriptionStatusActive,
			models.SubscriptionStatusPastDue,
			models.SubscriptionStatusPendingCancellation,
		}).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetByPaymentID(paymentID uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("payment_id = ?", paymentID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) LinkPayment(paymentID, subscriptionID uint) error {
	return r.db.Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Update("subscription_id", subscriptionID).Error
}

func (r *gormRepository) ClaimPayment(paymentID, subscriptionID uint) (bool, error) {
	tx := r.db.Model(&models.Payment{}).
		Where("id = ? AND subscription_id IS NULL", paymentID).
		Update("subscription_id", subscriptionID)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) GetPlan(id uint) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.First(&plan, id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) ListSweepCandidates(now time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	q := r.db.
		Where("status IN ?", []string{
			models.SubscriptionStatusTrial,
			models.SubscriptionStatusActive,
			models.SubscriptionStatusPastDue,
			models.SubscriptionStatusPendingCancellation,
		}).
		Where("expires_at <= ? OR (grace_ends_at IS NOT NULL AND grace_ends_at <= ?) OR (trial_ends_at IS NOT NULL AND trial_ends_at <= ?)",
			now, now, now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&subs).Error
	return subs, err
}
