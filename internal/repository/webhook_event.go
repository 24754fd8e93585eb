package repository

import (
	"context"
	"summit-webhook/internal/model"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WebhookEventRepository interface {
	Create(ctx context.Context, event *model.WebhookEvent) error
	MarkProcessed(ctx context.Context, eventID, outcome, processingError string) error
	ListByTransactionID(ctx context.Context, providerTransactionID string) ([]*model.WebhookEvent, error)
}

type webhookEventRepoImpl struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepoImpl{db: db}
}

func (r *webhookEventRepoImpl) Create(ctx context.Context, event *model.WebhookEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *webhookEventRepoImpl) MarkProcessed(ctx context.Context, eventID, outcome, processingError string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("id = ?", eventID).
		Updates(map[string]interface{}{
			"outcome":          outcome,
			"processing_error": processingError,
			"processed_at":     &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListByTransactionID returns every delivery seen for one payment, oldest first.
func (r *webhookEventRepoImpl) ListByTransactionID(ctx context.Context, providerTransactionID string) ([]*model.WebhookEvent, error) {
	var events []*model.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("provider_transaction_id = ?", providerTransactionID).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}

	return events, nil
}
