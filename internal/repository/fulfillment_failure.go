package repository

import (
	"context"
	"summit-webhook/internal/model"

	"gorm.io/gorm"
)

// FulfillmentFailureRepository is the database-backed dead-letter table.
type FulfillmentFailureRepository interface {
	Escalate(ctx context.Context, failure *model.FulfillmentFailure) error
	ListUnresolved(ctx context.Context, limit int) ([]*model.FulfillmentFailure, error)
	MarkResolved(ctx context.Context, id string) error
}

type fulfillmentFailureRepoImpl struct {
	db *gorm.DB
}

func NewFulfillmentFailureRepository(db *gorm.DB) FulfillmentFailureRepository {
	return &fulfillmentFailureRepoImpl{db: db}
}

func (r *fulfillmentFailureRepoImpl) Escalate(ctx context.Context, failure *model.FulfillmentFailure) error {
	return r.db.WithContext(ctx).Create(failure).Error
}

func (r *fulfillmentFailureRepoImpl) ListUnresolved(ctx context.Context, limit int) ([]*model.FulfillmentFailure, error) {
	var failures []*model.FulfillmentFailure
	q := r.db.WithContext(ctx).
		Where("resolved = ?", false).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&failures).Error; err != nil {
		return nil, err
	}

	return failures, nil
}

func (r *fulfillmentFailureRepoImpl) MarkResolved(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&model.FulfillmentFailure{}).
		Where("id = ?", id).
		Update("resolved", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
