package riskcontrol

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fraud-risk-engine/pkg/logger"

	"github.com/google/uuid"
)

// Service 风控服务接口
type Service interface {
	// 订单风险分析
	AnalyzeOrder(ctx context.Context, order *OrderContext) (*AnalysisResult, error)

	// 黑名单管理
	AddToBlacklist(ctx context.Context, req *BlacklistRequest) (*BlacklistEntry, error)
	RemoveFromBlacklist(ctx context.Context, id, operator string) error
	IsBlacklisted(ctx context.Context, blType BlacklistType, value string) (bool, error)
	ListBlacklist(ctx context.Context, filter BlacklistFilter) ([]*BlacklistEntry, int64, error)
	SweepExpiredBlacklist(ctx context.Context) (int64, error)

	// 告警审核
	GetAlert(ctx context.Context, id string) (*FraudAlert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*FraudAlert, int64, error)
	UpdateAlertStatus(ctx context.Context, id string, req *AlertStatusRequest) (*FraudAlert, error)

	// 客户风险画像
	GetRiskProfile(ctx context.Context, customerID string) (*RiskProfile, error)

	// Wait 等待在途的异步写入
	Wait()
}

// BlacklistRequest 新增黑名单请求
type BlacklistRequest struct {
	Type      BlacklistType `json:"type" binding:"required"`
	Value     string        `json:"value" binding:"required"`
	Reason    string        `json:"reason"`
	Severity  AlertSeverity `json:"severity"`
	AddedBy   string        `json:"-"`
	ExpiresAt *time.Time    `json:"expires_at"`
}

// AlertStatusRequest 告警状态变更请求
type AlertStatusRequest struct {
	Status     AlertStatus `json:"status" binding:"required"`
	Resolution string      `json:"resolution"`
	ReviewedBy string      `json:"-"`
}

type service struct {
	engine      *Aggregator
	blacklist   BlacklistRegistry
	alerts      *AlertManager
	profiles    RiskProfileStore
	audit       *auditor
	phoneRegion string
	clock       clock
}

// NewService 创建风控服务
func NewService(cfg Config, deps Dependencies) Service {
	if deps.Alerts == nil {
		deps.Alerts = NewAlertManager(NewMemoryAlertStore(), nil, 0)
	}
	engine := NewAggregator(cfg, deps)
	return &service{
		engine:      engine,
		blacklist:   deps.Blacklist,
		alerts:      deps.Alerts,
		profiles:    deps.Profiles,
		audit:       engine.audit,
		phoneRegion: cfg.PhoneRegion,
		clock:       clock(deps.Clock),
	}
}

// AnalyzeOrder 校验后交给引擎
func (s *service) AnalyzeOrder(ctx context.Context, order *OrderContext) (*AnalysisResult, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	return s.engine.AnalyzeOrder(ctx, order), nil
}

// AddToBlacklist 添加到黑名单
func (s *service) AddToBlacklist(ctx context.Context, req *BlacklistRequest) (*BlacklistEntry, error) {
	if !req.Type.Valid() {
		return nil, ErrInvalidBlacklistType
	}
	value, err := NormalizeBlacklistValue(req.Type, req.Value, s.phoneRegion)
	if err != nil {
		return nil, err
	}

	now := s.clock.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: expires_at must be in the future", ErrInvalidBlacklistValue)
	}
	severity := req.Severity
	if severity == "" {
		severity = SeverityHigh
	}

	entry := &BlacklistEntry{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Value:     value,
		Reason:    strings.TrimSpace(req.Reason),
		Severity:  severity,
		AddedBy:   req.AddedBy,
		AddedAt:   now,
		ExpiresAt: req.ExpiresAt,
		IsActive:  true,
	}
	if err := s.blacklist.Add(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to add blacklist entry: %w", err)
	}

	logger.Infof("Added to blacklist: %s=%s by %s", entry.Type, entry.Value, entry.AddedBy)
	s.audit.emit("blacklist_added", map[string]interface{}{
		"id":       entry.ID,
		"type":     entry.Type,
		"added_by": entry.AddedBy,
	})
	return entry, nil
}

// RemoveFromBlacklist 从黑名单移除
func (s *service) RemoveFromBlacklist(ctx context.Context, id, operator string) error {
	if err := s.blacklist.Remove(ctx, id); err != nil {
		return err
	}
	s.audit.emit("blacklist_removed", map[string]interface{}{
		"id":       id,
		"operator": operator,
	})
	return nil
}

// IsBlacklisted 检查是否命中有效条目
func (s *service) IsBlacklisted(ctx context.Context, blType BlacklistType, value string) (bool, error) {
	if !blType.Valid() {
		return false, ErrInvalidBlacklistType
	}
	normalized, err := NormalizeBlacklistValue(blType, value, s.phoneRegion)
	if err != nil {
		return false, err
	}
	entry, err := s.blacklist.Find(ctx, blType, normalized)
	if err != nil {
		return false, err
	}
	return entry != nil && !entry.Expired(s.clock.now()), nil
}

// ListBlacklist 列出黑名单
func (s *service) ListBlacklist(ctx context.Context, filter BlacklistFilter) ([]*BlacklistEntry, int64, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, 0, ErrInvalidBlacklistType
	}
	return s.blacklist.List(ctx, filter)
}

// SweepExpiredBlacklist 批量停用过期条目
func (s *service) SweepExpiredBlacklist(ctx context.Context) (int64, error) {
	n, err := s.blacklist.DeactivateExpired(ctx, s.clock.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Infof("Deactivated %d expired blacklist entries", n)
		s.audit.emit("blacklist_expired_swept", map[string]interface{}{"count": n})
	}
	return n, nil
}

// GetAlert 获取告警
func (s *service) GetAlert(ctx context.Context, id string) (*FraudAlert, error) {
	return s.alerts.GetAlert(ctx, id)
}

// ListAlerts 列出告警
func (s *service) ListAlerts(ctx context.Context, filter AlertFilter) ([]*FraudAlert, int64, error) {
	return s.alerts.ListAlerts(ctx, filter)
}

// UpdateAlertStatus 变更告警状态
func (s *service) UpdateAlertStatus(ctx context.Context, id string, req *AlertStatusRequest) (*FraudAlert, error) {
	alert, err := s.alerts.UpdateAlertStatus(ctx, id, req.Status, req.ReviewedBy, req.Resolution)
	if err != nil {
		return nil, err
	}
	s.audit.emit("alert_status_updated", map[string]interface{}{
		"alert_id":    alert.ID,
		"status":      alert.Status,
		"reviewed_by": alert.ReviewedBy,
	})
	return alert, nil
}

// GetRiskProfile 获取客户风险画像
func (s *service) GetRiskProfile(ctx context.Context, customerID string) (*RiskProfile, error) {
	return s.profiles.Get(ctx, customerID)
}

// Wait 等待在途的审计与通知
func (s *service) Wait() {
	s.engine.Wait()
}
