package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/ledgersync/app/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// deliveryRepository implements the DeliveryRepository interface
type deliveryRepository struct {
	db *gorm.DB
}

// NewDeliveryRepository creates a new delivery repository instance
func NewDeliveryRepository(db *gorm.DB) DeliveryRepository {
	return &deliveryRepository{db: db}
}

// Create inserts a delivery row. Empty lists are stored as [] rather than null.
func (r *deliveryRepository) Create(ctx context.Context, delivery *models.WebhookDelivery) error {
	if delivery.Status == "" {
		delivery.Status = models.DeliveryStatusReceived
	}
	if delivery.ReceivedAt.IsZero() {
		delivery.ReceivedAt = time.Now()
	}
	delivery.ProcessedEntities = nonNil(delivery.ProcessedEntities)
	delivery.SkippedEntities = nonNil(delivery.SkippedEntities)
	delivery.Errors = nonNil(delivery.Errors)
	return r.db.WithContext(ctx).Create(delivery).Error
}

func (r *deliveryRepository) AnnotateVerification(ctx context.Context, id uint, warning string) error {
	tx := r.db.WithContext(ctx).Model(&models.WebhookDelivery{}).
		Where("id = ? AND status = ?", id, models.DeliveryStatusReceived).
		Updates(map[string]interface{}{
			"signature_valid":      false,
			"verification_warning": warning,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrDeliveryFinalized
	}
	return nil
}

// Finalize writes the terminal outcome. The status guard makes the transition
// happen at most once even when two writers race.
func (r *deliveryRepository) Finalize(ctx context.Context, id uint, outcome DeliveryOutcome) error {
	processedAt := outcome.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}
	updates := map[string]interface{}{
		"status":             outcome.Status,
		"processed_entities": nonNil(outcome.ProcessedEntities),
		"skipped_entities":   nonNil(outcome.SkippedEntities),
		"errors":             nonNil(outcome.Errors),
		"processing_time_ms": outcome.ProcessingTimeMs,
		"processed_at":       &processedAt,
	}
	if outcome.Topic != "" {
		updates["topic"] = outcome.Topic
	}
	if outcome.EntityType != "" {
		updates["entity_type"] = outcome.EntityType
	}
	if outcome.Action != "" {
		updates["action"] = outcome.Action
	}
	tx := r.db.WithContext(ctx).Model(&models.WebhookDelivery{}).
		Where("id = ? AND status = ?", id, models.DeliveryStatusReceived).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrDeliveryFinalized
	}
	return nil
}

func (r *deliveryRepository) GetByID(ctx context.Context, id uint) (*models.WebhookDelivery, error) {
	var d models.WebhookDelivery
	if err := r.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *deliveryRepository) List(ctx context.Context, filter DeliveryFilter, offset, limit int) ([]models.WebhookDelivery, error) {
	var deliveries []models.WebhookDelivery
	err := r.filtered(ctx, filter).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&deliveries).Error
	return deliveries, err
}

func (r *deliveryRepository) Count(ctx context.Context, filter DeliveryFilter) (int64, error) {
	var count int64
	err := r.filtered(ctx, filter).Model(&models.WebhookDelivery{}).Count(&count).Error
	return count, err
}

// ListStuck returns deliveries that never reached a terminal status.
func (r *deliveryRepository) ListStuck(ctx context.Context, receivedBefore time.Time, limit int) ([]models.WebhookDelivery, error) {
	var deliveries []models.WebhookDelivery
	err := r.db.WithContext(ctx).
		Where("status = ? AND received_at < ?", models.DeliveryStatusReceived, receivedBefore).
		Order("id ASC").
		Limit(limit).
		Find(&deliveries).Error
	return deliveries, err
}

func (r *deliveryRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Total  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.WebhookDelivery{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[string]int64{
		models.DeliveryStatusReceived:  0,
		models.DeliveryStatusCompleted: 0,
		models.DeliveryStatusFailed:    0,
	}
	for _, rw := range rows {
		out[rw.Status] = rw.Total
	}
	return out, nil
}

func (r *deliveryRepository) filtered(ctx context.Context, filter DeliveryFilter) *gorm.DB {
	q := r.db.WithContext(ctx)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.EntityType != "" {
		q = q.Where("entity_type = ?", filter.EntityType)
	}
	if filter.DeliveryID != "" {
		q = q.Where("delivery_id = ?", filter.DeliveryID)
	}
	return q
}

func nonNil(list []string) datatypes.JSONSlice[string] {
	if list == nil {
		return datatypes.JSONSlice[string]{}
	}
	return datatypes.JSONSlice[string](list)
}
