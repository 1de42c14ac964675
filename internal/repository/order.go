package repository

import (
	"context"
	"errors"
	"time"

	"subscription-bridge/internal/model"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("record not found")

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	FindByOrderID(ctx context.Context, orderID string) (*model.Order, error)
	MarkPaid(ctx context.Context, tx *gorm.DB, orderID string, paidAt time.Time) (bool, error)
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return r.conn(tx).WithContext(ctx).Create(order).Error
}

func (r *orderRepoImpl) FindByOrderID(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&order).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &order, nil
}

// MarkPaid stamps paid_at once. It reports false when the order was already
// paid or does not exist.
func (r *orderRepoImpl) MarkPaid(ctx context.Context, tx *gorm.DB, orderID string, paidAt time.Time) (bool, error) {
	result := r.conn(tx).WithContext(ctx).Model(&model.Order{}).
		Where("order_id = ? AND paid_at IS NULL", orderID).
		Update("paid_at", paidAt)

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}
