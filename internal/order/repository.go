package order

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Repository 订单仓储接口
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByOrderID(ctx context.Context, orderID string) (*Order, error)
	ListSince(ctx context.Context, customerID string, since time.Time) ([]*Order, error)
	ListByCustomer(ctx context.Context, customerID string, page, pageSize int) ([]*Order, int64, error)
	UpdateStatus(ctx context.Context, orderID string, status Status) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository 创建订单仓储
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Create 创建订单
func (r *repository) Create(ctx context.Context, o *Order) error {
	return r.db.WithContext(ctx).Create(o).Error
}

// GetByOrderID 通过订单号获取订单
func (r *repository) GetByOrderID(ctx context.Context, orderID string) (*Order, error) {
	var o Order
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// ListSince 列出客户在 since 之后的订单
func (r *repository) ListSince(ctx context.Context, customerID string, since time.Time) ([]*Order, error) {
	var orders []*Order
	if err := r.db.WithContext(ctx).
		Where("customer_id = ? AND created_at >= ?", customerID, since).
		Order("created_at ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListByCustomer 分页列出客户订单
func (r *repository) ListByCustomer(ctx context.Context, customerID string, page, pageSize int) ([]*Order, int64, error) {
	var orders []*Order
	var total int64

	query := r.db.WithContext(ctx).Model(&Order{}).Where("customer_id = ?", customerID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateStatus 更新订单状态
func (r *repository) UpdateStatus(ctx context.Context, orderID string, status Status) error {
	result := r.db.WithContext(ctx).Model(&Order{}).Where("order_id = ?", orderID).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}
