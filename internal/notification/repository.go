package notification

import (
	"context"

	"gorm.io/gorm"
)

// Repository 通知仓储接口
type Repository interface {
	CreateNotification(ctx context.Context, n *Notification) error
	GetNotification(ctx context.Context, id uint) (*Notification, error)
	ListByAlert(ctx context.Context, alertID string) ([]*Notification, error)
	ListPendingNotifications(ctx context.Context, limit int) ([]*Notification, error)
	UpdateNotification(ctx context.Context, n *Notification) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository 创建通知仓储
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateNotification(ctx context.Context, n *Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *repository) GetNotification(ctx context.Context, id uint) (*Notification, error) {
	var n Notification
	if err := r.db.WithContext(ctx).First(&n, id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *repository) ListByAlert(ctx context.Context, alertID string) ([]*Notification, error) {
	var notifications []*Notification
	if err := r.db.WithContext(ctx).Where("alert_id = ?", alertID).
		Order("created_at ASC").Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *repository) ListPendingNotifications(ctx context.Context, limit int) ([]*Notification, error) {
	var notifications []*Notification
	if err := r.db.WithContext(ctx).Where("status = ? AND retry_count < ?", StatusPending, MaxRetries).
		Order("created_at ASC").Limit(limit).Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *repository) UpdateNotification(ctx context.Context, n *Notification) error {
	return r.db.WithContext(ctx).Save(n).Error
}
