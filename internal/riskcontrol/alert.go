package riskcontrol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fraud-risk-engine/pkg/logger"
	"fraud-risk-engine/pkg/metrics"

	"github.com/google/uuid"
)

// AlertInput 创建告警参数
type AlertInput struct {
	CustomerID  string
	OrderID     string
	Type        AlertType
	Severity    AlertSeverity
	Score       int
	Factors     []FraudFactor
	Description string
}

// AlertManager 告警持久化与通知
type AlertManager struct {
	store         AlertStore
	sink          AlertSink
	notifyTimeout time.Duration
	clock         clock
	wg            sync.WaitGroup
}

// NewAlertManager 创建告警管理器，sink 可为 nil
func NewAlertManager(store AlertStore, sink AlertSink, notifyTimeout time.Duration) *AlertManager {
	if notifyTimeout <= 0 {
		notifyTimeout = 10 * time.Second
	}
	return &AlertManager{store: store, sink: sink, notifyTimeout: notifyTimeout}
}

// CreateAlert 持久化告警；high/critical 异步通知，通知失败只记日志
//
// 持久化失败时仍返回构造好的告警及错误，调用方据此决定是否使用。
func (m *AlertManager) CreateAlert(ctx context.Context, in AlertInput) (*FraudAlert, error) {
	now := m.clock.now()
	factors := in.Factors
	if factors == nil {
		factors = []FraudFactor{}
	}
	kinds := make([]string, 0, len(factors))
	for _, f := range factors {
		kinds = append(kinds, f.Kind)
	}

	alert := &FraudAlert{
		ID:          uuid.NewString(),
		CustomerID:  in.CustomerID,
		OrderID:     in.OrderID,
		Type:        in.Type,
		Severity:    in.Severity,
		Score:       in.Score,
		Factors:     factors,
		FactorKinds: kinds,
		Status:      AlertStatusPending,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := m.store.Create(ctx, alert); err != nil {
		return alert, fmt.Errorf("failed to persist alert: %w", err)
	}
	metrics.AlertsTotal.WithLabelValues(string(alert.Severity)).Inc()

	if alert.Severity.Notifiable() && m.sink != nil {
		m.notify(alert)
	}
	return alert, nil
}

func (m *AlertManager) notify(alert *FraudAlert) {
	cp := *alert
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("alert notification panic: alert=%s err=%v", cp.ID, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), m.notifyTimeout)
		defer cancel()
		if err := m.sink.Notify(ctx, &cp); err != nil {
			logger.WithFields(map[string]interface{}{
				"alert_id":    cp.ID,
				"customer_id": cp.CustomerID,
				"severity":    cp.Severity,
			}).Warnf("alert notification failed: %v", err)
		}
	}()
}

// Wait 等待在途通知结束
func (m *AlertManager) Wait() {
	m.wg.Wait()
}

// GetAlert 获取告警
func (m *AlertManager) GetAlert(ctx context.Context, id string) (*FraudAlert, error) {
	alert, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, ErrAlertNotFound
	}
	return alert, nil
}

// ListAlerts 列出告警
func (m *AlertManager) ListAlerts(ctx context.Context, filter AlertFilter) ([]*FraudAlert, int64, error) {
	return m.store.List(ctx, filter)
}

// UpdateAlertStatus 人工审核流转，终态不可再改
func (m *AlertManager) UpdateAlertStatus(ctx context.Context, id string, status AlertStatus, reviewer, resolution string) (*FraudAlert, error) {
	if !status.Valid() {
		return nil, ErrInvalidAlertStatus
	}

	alert, err := m.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.Status.Terminal() {
		return nil, ErrAlertClosed
	}

	alert.Status = status
	alert.ReviewedBy = reviewer
	if resolution != "" {
		alert.Resolution = resolution
	}
	alert.UpdatedAt = m.clock.now()
	if err := m.store.Update(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}
	return alert, nil
}
