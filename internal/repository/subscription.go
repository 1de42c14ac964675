package repository

import (
	"context"
	"errors"
	"time"

	"subscription-bridge/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionRepository interface {
	// Extend applies additive renewal in a single upsert: an expiry still in
	// the future grows by addMillis, otherwise it restarts at nowMillis+addMillis.
	Extend(ctx context.Context, tx *gorm.DB, userID int64, nowMillis, addMillis int64) (*model.Subscription, error)
	Get(ctx context.Context, userID int64) (*model.Subscription, error)
	Delete(ctx context.Context, userID int64) (bool, error)
	ListExpiredSince(ctx context.Context, nowMillis int64) ([]int64, error)
}

type subscriptionRepoImpl struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepoImpl{
		db: db,
	}
}

func (r *subscriptionRepoImpl) Extend(ctx context.Context, tx *gorm.DB, userID int64, nowMillis, addMillis int64) (*model.Subscription, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}

	sub := &model.Subscription{
		UserID:          userID,
		ExpiresAtMillis: nowMillis + addMillis,
	}

	err := conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"expires_at_millis": gorm.Expr(
				"CASE WHEN subscriptions.expires_at_millis > ? THEN subscriptions.expires_at_millis + ? ELSE ? END",
				nowMillis, addMillis, nowMillis+addMillis,
			),
			"updated_at": time.Now(),
		}),
	}).Create(sub).Error
	if err != nil {
		return nil, err
	}

	var stored model.Subscription
	err = conn.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&stored).Error
	if err != nil {
		return nil, err
	}

	return &stored, nil
}

func (r *subscriptionRepoImpl) Get(ctx context.Context, userID int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&sub).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &sub, nil
}

func (r *subscriptionRepoImpl) Delete(ctx context.Context, userID int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.Subscription{})

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *subscriptionRepoImpl) ListExpiredSince(ctx context.Context, nowMillis int64) ([]int64, error) {
	var userIDs []int64
	err := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("expires_at_millis < ?", nowMillis).
		Order("user_id").
		Pluck("user_id", &userIDs).
		Error

	if err != nil {
		return nil, err
	}

	return userIDs, nil
}
