package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
)

// EventInput describes an inbound gateway webhook delivery.
type EventInput struct {
	Gateway        string
	GatewayEventID string
	EventType      string
	PayloadJSON    string
	SignatureValid bool
}

// Store persists webhook deliveries idempotently. The gateway event id is
// the dedup key; a delivery without one is keyed by payload hash so replays
// of the identical body still dedup.
type Store struct {
	db *gorm.DB
}

// NewStore creates a webhook event store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Record persists the delivery. The first return value reports whether this
// delivery is new; duplicates return the previously stored event.
func (s *Store) Record(ctx context.Context, in EventInput) (bool, *models.WebhookEvent, error) {
	_ = ctx
	gateway := strings.ToLower(strings.TrimSpace(in.Gateway))
	if gateway == "" {
		return false, nil, errors.New("webhooks: gateway is required")
	}
	eventID := strings.TrimSpace(in.GatewayEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Gateway:        gateway,
		GatewayEventID: eventID,
		EventType:      strings.TrimSpace(in.EventType),
		PayloadJSON:    in.PayloadJSON,
		SignatureValid: in.SignatureValid,
	}

	tx := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "gateway"},
			{Name: "gateway_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := s.db.Where("gateway = ? AND gateway_event_id = ?", gateway, eventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// MarkProcessed stamps the event with the processing outcome.
func (s *Store) MarkProcessed(ctx context.Context, eventID uint, processingErr error) error {
	_ = ctx
	now := time.Now()
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.db.Model(&models.WebhookEvent{}).Where("id = ?", eventID).Updates(map[string]interface{}{
		"processed_at":     &now,
		"processing_error": errMsg,
	}).Error
}
