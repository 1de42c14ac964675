package repository

import (
	"context"
	"time"

	"subscription-bridge/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WebhookEventRepository interface {
	// MarkProcessed inserts (provider, eventID) unless present and reports
	// whether this call performed the insert.
	MarkProcessed(ctx context.Context, tx *gorm.DB, provider, eventID string) (bool, error)
	Exists(ctx context.Context, provider, eventID string) (bool, error)
}

type webhookEventRepositoryImpl struct {
	db  *gorm.DB
	now func() time.Time
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepositoryImpl{db: db, now: time.Now}
}

func (r *webhookEventRepositoryImpl) MarkProcessed(ctx context.Context, tx *gorm.DB, provider, eventID string) (bool, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}

	result := conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.WebhookEvent{
			Provider:    provider,
			EventID:     eventID,
			ProcessedAt: r.now(),
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (r *webhookEventRepositoryImpl) Exists(ctx context.Context, provider, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Count(&count).Error

	return count > 0, err
}
