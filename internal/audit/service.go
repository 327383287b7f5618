package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Repository 审计仓储接口
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	GetByID(ctx context.Context, id uint) (*AuditLog, error)
	List(ctx context.Context, filter *ListFilter) ([]*AuditLog, int64, error)
	CountByAction(ctx context.Context, module, action string, startTime, endTime time.Time) (int64, error)
}

// ListFilter 列表过滤条件
type ListFilter struct {
	Module     string
	Action     string
	CustomerID string
	StartTime  *time.Time
	EndTime    *time.Time
	Page       int
	PageSize   int
}

type repository struct {
	db *gorm.DB
}

// NewRepository 创建审计仓储
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Create 创建审计日志
func (r *repository) Create(ctx context.Context, log *AuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// GetByID 获取审计日志
func (r *repository) GetByID(ctx context.Context, id uint) (*AuditLog, error) {
	var log AuditLog
	if err := r.db.WithContext(ctx).First(&log, id).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

// List 列出审计日志
func (r *repository) List(ctx context.Context, filter *ListFilter) ([]*AuditLog, int64, error) {
	var logs []*AuditLog
	var total int64

	query := r.db.WithContext(ctx).Model(&AuditLog{})

	if filter.Module != "" {
		query = query.Where("module = ?", filter.Module)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.CustomerID != "" {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.StartTime != nil {
		query = query.Where("created_at >= ?", filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("created_at <= ?", filter.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.PageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(filter.PageSize).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// CountByAction 统计操作次数
func (r *repository) CountByAction(ctx context.Context, module, action string, startTime, endTime time.Time) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&AuditLog{}).Where("created_at BETWEEN ? AND ?", startTime, endTime)
	if module != "" {
		query = query.Where("module = ?", module)
	}
	if action != "" {
		query = query.Where("action = ?", action)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Service 审计服务接口
type Service interface {
	// Log 风控引擎的审计出口
	Log(ctx context.Context, event string, payload map[string]interface{}) error
	LogAdminAction(ctx context.Context, operator, action, resourceID, description string, payload interface{}) error
	GetLog(ctx context.Context, id uint) (*AuditLog, error)
	ListLogs(ctx context.Context, filter *ListFilter) ([]*AuditLog, int64, error)
	CountEvents(ctx context.Context, action string, startTime, endTime time.Time) (int64, error)
	ExportLogs(ctx context.Context, filter *ListFilter) ([]byte, error)
}

type service struct {
	repo Repository
}

// NewService 创建审计服务
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Log 记录风控事件
func (s *service) Log(ctx context.Context, event string, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}

	status := 1
	if failedActions[event] {
		status = 0
	}

	log := &AuditLog{
		Module:     ModuleRisk,
		Action:     event,
		CustomerID: stringField(payload, "customer_id"),
		ResourceID: firstField(payload, "order_id", "alert_id", "id"),
		Operator:   firstField(payload, "operator", "reviewed_by", "added_by"),
		Payload:    string(data),
		Status:     status,
	}
	return s.repo.Create(ctx, log)
}

// LogAdminAction 记录管理员操作
func (s *service) LogAdminAction(ctx context.Context, operator, action, resourceID, description string, payload interface{}) error {
	var payloadStr string
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			payloadStr = string(data)
		}
	}

	return s.repo.Create(ctx, &AuditLog{
		Module:      ModuleAdmin,
		Action:      action,
		ResourceID:  resourceID,
		Operator:    operator,
		Description: description,
		Payload:     payloadStr,
		Status:      1,
	})
}

// GetLog 获取日志
func (s *service) GetLog(ctx context.Context, id uint) (*AuditLog, error) {
	return s.repo.GetByID(ctx, id)
}

// ListLogs 列出日志
func (s *service) ListLogs(ctx context.Context, filter *ListFilter) ([]*AuditLog, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	return s.repo.List(ctx, filter)
}

// CountEvents 统计风控事件
func (s *service) CountEvents(ctx context.Context, action string, startTime, endTime time.Time) (int64, error) {
	return s.repo.CountByAction(ctx, ModuleRisk, action, startTime, endTime)
}

// ExportLogs 导出日志
func (s *service) ExportLogs(ctx context.Context, filter *ListFilter) ([]byte, error) {
	logs, _, err := s.ListLogs(ctx, filter)
	if err != nil {
		return nil, err
	}
	return json.Marshal(logs)
}

func stringField(payload map[string]interface{}, key string) string {
	if v, ok := payload[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func firstField(payload map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v := stringField(payload, k); v != "" {
			return v
		}
	}
	return ""
}
