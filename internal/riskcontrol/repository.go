package riskcontrol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderHistoryLookup 订单历史查询，由宿主实现
type OrderHistoryLookup interface {
	ListOrdersSince(ctx context.Context, customerID string, since time.Time) ([]OrderSummary, error)
}

// RiskProfileStore 客户风险画像存储
type RiskProfileStore interface {
	// Get 不存在时返回 nil, nil
	Get(ctx context.Context, customerID string) (*RiskProfile, error)
	Put(ctx context.Context, profile *RiskProfile) error
	// Update 在客户级锁内读-改-写，不存在时先创建
	Update(ctx context.Context, customerID string, fn func(*RiskProfile) error) (*RiskProfile, error)
}

// DeviceTrustRegistry 设备信任登记
type DeviceTrustRegistry interface {
	Get(ctx context.Context, id string) (*DeviceFingerprint, error)
	Put(ctx context.Context, device *DeviceFingerprint) error
}

// BlacklistFilter 黑名单查询条件
type BlacklistFilter struct {
	Type       BlacklistType
	ActiveOnly bool
	Page       int
	PageSize   int
}

// BlacklistRegistry 黑名单登记
type BlacklistRegistry interface {
	// Find 返回 (type, value) 的有效条目，优先永不过期或过期时间最晚的；可能已过期，由调用方判断
	Find(ctx context.Context, blType BlacklistType, value string) (*BlacklistEntry, error)
	Deactivate(ctx context.Context, id string) error
	Add(ctx context.Context, entry *BlacklistEntry) error
	Remove(ctx context.Context, id string) error
	List(ctx context.Context, filter BlacklistFilter) ([]*BlacklistEntry, int64, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// AlertFilter 告警查询条件
type AlertFilter struct {
	CustomerID string
	Type       AlertType
	Severity   AlertSeverity
	Status     AlertStatus
	FactorKind string
	Page       int
	PageSize   int
}

// AlertStore 告警存储
type AlertStore interface {
	Create(ctx context.Context, alert *FraudAlert) error
	Get(ctx context.Context, id string) (*FraudAlert, error)
	Update(ctx context.Context, alert *FraudAlert) error
	List(ctx context.Context, filter AlertFilter) ([]*FraudAlert, int64, error)
}

// AlertSink 外部告警通知
type AlertSink interface {
	Notify(ctx context.Context, alert *FraudAlert) error
}

// AuditSink 审计日志
type AuditSink interface {
	Log(ctx context.Context, event string, payload map[string]interface{}) error
}

func pageOf(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return (page - 1) * pageSize, pageSize
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository 创建风险画像仓储
func NewProfileRepository(db *gorm.DB) RiskProfileStore {
	return &profileRepository{db: db}
}

// Get 获取风险画像
func (r *profileRepository) Get(ctx context.Context, customerID string) (*RiskProfile, error) {
	var profile RiskProfile
	if err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// Put 按 customer_id 覆盖写入
func (r *profileRepository) Put(ctx context.Context, profile *RiskProfile) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "customer_id"}},
		UpdateAll: true,
	}).Create(profile).Error
}

// Update 事务内 SELECT ... FOR UPDATE 后回调修改
func (r *profileRepository) Update(ctx context.Context, customerID string, fn func(*RiskProfile) error) (*RiskProfile, error) {
	var out RiskProfile
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked := func() error {
			return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("customer_id = ?", customerID).First(&out).Error
		}

		err := locked()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			seed := &RiskProfile{CustomerID: customerID, RiskLevel: RiskLevelLow, LastUpdated: time.Now()}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "customer_id"}},
				DoNothing: true,
			}).Create(seed).Error; err != nil {
				return fmt.Errorf("failed to create risk profile: %w", err)
			}
			err = locked()
		}
		if err != nil {
			return err
		}

		if err := fn(&out); err != nil {
			return err
		}
		out.CustomerID = customerID
		return tx.Save(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type deviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository 创建设备仓储
func NewDeviceRepository(db *gorm.DB) DeviceTrustRegistry {
	return &deviceRepository{db: db}
}

// Get 获取设备
func (r *deviceRepository) Get(ctx context.Context, id string) (*DeviceFingerprint, error) {
	var device DeviceFingerprint
	if err := r.db.WithContext(ctx).First(&device, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &device, nil
}

// Put 写入设备，后写覆盖
func (r *deviceRepository) Put(ctx context.Context, device *DeviceFingerprint) error {
	return r.db.WithContext(ctx).Save(device).Error
}

type blacklistRepository struct {
	db *gorm.DB
}

// NewBlacklistRepository 创建黑名单仓储
func NewBlacklistRepository(db *gorm.DB) BlacklistRegistry {
	return &blacklistRepository{db: db}
}

// Find 查找有效条目
func (r *blacklistRepository) Find(ctx context.Context, blType BlacklistType, value string) (*BlacklistEntry, error) {
	var entry BlacklistEntry
	err := r.db.WithContext(ctx).
		Where("type = ? AND value = ? AND is_active = ?", blType, value, true).
		Order("expires_at DESC NULLS FIRST").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// Deactivate 停用条目
func (r *blacklistRepository) Deactivate(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&BlacklistEntry{}).
		Where("id = ?", id).Update("is_active", false).Error
}

// Add 新增条目
func (r *blacklistRepository) Add(ctx context.Context, entry *BlacklistEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// Remove 删除条目
func (r *blacklistRepository) Remove(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&BlacklistEntry{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBlacklistNotFound
	}
	return nil
}

// List 列出黑名单
func (r *blacklistRepository) List(ctx context.Context, filter BlacklistFilter) ([]*BlacklistEntry, int64, error) {
	var items []*BlacklistEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&BlacklistEntry{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := pageOf(filter.Page, filter.PageSize)
	if err := query.Order("added_at DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// DeactivateExpired 批量停用已过期条目
func (r *blacklistRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&BlacklistEntry{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

type alertRepository struct {
	db *gorm.DB
}

// NewAlertRepository 创建告警仓储
func NewAlertRepository(db *gorm.DB) AlertStore {
	return &alertRepository{db: db}
}

// Create 创建告警
func (r *alertRepository) Create(ctx context.Context, alert *FraudAlert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

// Get 获取告警
func (r *alertRepository) Get(ctx context.Context, id string) (*FraudAlert, error) {
	var alert FraudAlert
	if err := r.db.WithContext(ctx).First(&alert, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &alert, nil
}

// Update 更新告警
func (r *alertRepository) Update(ctx context.Context, alert *FraudAlert) error {
	return r.db.WithContext(ctx).Save(alert).Error
}

// List 列出告警
func (r *alertRepository) List(ctx context.Context, filter AlertFilter) ([]*FraudAlert, int64, error) {
	var items []*FraudAlert
	var total int64

	query := r.db.WithContext(ctx).Model(&FraudAlert{})
	if filter.CustomerID != "" {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.FactorKind != "" {
		query = query.Where("? = ANY(factor_kinds)", filter.FactorKind)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := pageOf(filter.Page, filter.PageSize)
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
