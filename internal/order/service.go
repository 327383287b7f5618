package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"fraud-risk-engine/internal/riskcontrol"
	"fraud-risk-engine/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrInvalidOrder  = errors.New("invalid order")
	ErrDuplicate     = errors.New("order already recorded")
)

// VelocityCache 客户近期订单的滑动窗口缓存。
// Since 的 complete 为 false 时窗口只含部分订单，需回源。
type VelocityCache interface {
	Add(ctx context.Context, customerID, member string, at time.Time) error
	Since(ctx context.Context, customerID string, since time.Time) (members []string, complete bool, err error)
	Fill(ctx context.Context, customerID string, members map[string]time.Time) error
	Invalidate(ctx context.Context, customerID string) error
}

// Service 订单服务接口
type Service interface {
	RecordOrder(ctx context.Context, req *RecordOrderRequest) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	ListOrders(ctx context.Context, customerID string, page, pageSize int) ([]*Order, int64, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status Status) error

	// ListOrdersSince 供风控频率检测使用
	ListOrdersSince(ctx context.Context, customerID string, since time.Time) ([]riskcontrol.OrderSummary, error)
}

type service struct {
	repo  Repository
	cache VelocityCache
	now   func() time.Time

	// 本进程写窗口失败且未能清除标记的客户
	staleMu sync.Mutex
	stale   map[string]struct{}
}

// NewService 创建订单服务，cache 可为 nil
func NewService(repo Repository, cache VelocityCache) Service {
	return &service{repo: repo, cache: cache, now: time.Now, stale: make(map[string]struct{})}
}

// RecordOrderRequest 记录订单请求
type RecordOrderRequest struct {
	OrderID       string          `json:"order_id"`
	CustomerID    string          `json:"customer_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	Status        Status          `json:"status"`
	CreatedAt     *time.Time      `json:"created_at"`
}

// RecordOrder 记录订单并写入频率窗口
func (s *service) RecordOrder(ctx context.Context, req *RecordOrderRequest) (*Order, error) {
	if strings.TrimSpace(req.CustomerID) == "" {
		return nil, fmt.Errorf("%w: customer_id is required", ErrInvalidOrder)
	}
	if req.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidOrder)
	}
	status := req.Status
	if status == "" {
		status = StatusPlaced
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, status)
	}

	orderID := req.OrderID
	if orderID == "" {
		orderID = uuid.New().String()
	} else if existing, err := s.repo.GetByOrderID(ctx, orderID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrDuplicate
	}

	createdAt := s.now()
	if req.CreatedAt != nil {
		createdAt = *req.CreatedAt
	}

	o := &Order{
		OrderID:       orderID,
		CustomerID:    req.CustomerID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
		Status:        status,
		CreatedAt:     createdAt,
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Add(ctx, o.CustomerID, encodeMember(o), o.CreatedAt); err != nil {
			logger.Warnf("Failed to update velocity window for %s: %v", o.CustomerID, err)
			s.invalidate(ctx, o.CustomerID)
		}
	}

	logger.Infof("Order recorded: %s customer=%s amount=%s", o.OrderID, o.CustomerID, o.Amount.StringFixed(2))
	return o, nil
}

// GetOrder 获取订单
func (s *service) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// ListOrders 列出客户订单
func (s *service) ListOrders(ctx context.Context, customerID string, page, pageSize int) ([]*Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.repo.ListByCustomer(ctx, customerID, page, pageSize)
}

// UpdateOrderStatus 更新订单状态
func (s *service) UpdateOrderStatus(ctx context.Context, orderID string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, status)
	}
	return s.repo.UpdateStatus(ctx, orderID, status)
}

// ListOrdersSince 窗口完整时读缓存，否则回源数据库并回填窗口
func (s *service) ListOrdersSince(ctx context.Context, customerID string, since time.Time) ([]riskcontrol.OrderSummary, error) {
	if s.cache != nil && !s.isStale(customerID) {
		members, complete, err := s.cache.Since(ctx, customerID, since)
		switch {
		case err != nil:
			logger.Warnf("Velocity window read failed for %s, falling back to database: %v", customerID, err)
		case complete:
			summaries := make([]riskcontrol.OrderSummary, 0, len(members))
			for _, m := range members {
				summary, err := decodeMember(m)
				if err != nil {
					logger.Warnf("Skipping malformed velocity member %q: %v", m, err)
					continue
				}
				summaries = append(summaries, summary)
			}
			return summaries, nil
		}
	}

	orders, err := s.repo.ListSince(ctx, customerID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	summaries := make([]riskcontrol.OrderSummary, 0, len(orders))
	members := make(map[string]time.Time, len(orders))
	for _, o := range orders {
		summaries = append(summaries, riskcontrol.OrderSummary{
			OrderID:   o.OrderID,
			Amount:    o.Amount,
			CreatedAt: o.CreatedAt,
		})
		members[encodeMember(o)] = o.CreatedAt
	}

	if s.cache != nil {
		if err := s.cache.Fill(ctx, customerID, members); err != nil {
			logger.Warnf("Failed to backfill velocity window for %s: %v", customerID, err)
		} else {
			s.staleMu.Lock()
			delete(s.stale, customerID)
			s.staleMu.Unlock()
		}
	}
	return summaries, nil
}

func (s *service) invalidate(ctx context.Context, customerID string) {
	if err := s.cache.Invalidate(ctx, customerID); err == nil {
		return
	}
	s.staleMu.Lock()
	s.stale[customerID] = struct{}{}
	s.staleMu.Unlock()
}

func (s *service) isStale(customerID string) bool {
	s.staleMu.Lock()
	defer s.staleMu.Unlock()
	_, ok := s.stale[customerID]
	return ok
}

// 窗口成员格式: orderID|amount|unixMilli
func encodeMember(o *Order) string {
	return fmt.Sprintf("%s|%s|%d", o.OrderID, o.Amount.String(), o.CreatedAt.UnixMilli())
}

func decodeMember(member string) (riskcontrol.OrderSummary, error) {
	last := strings.LastIndex(member, "|")
	if last < 0 {
		return riskcontrol.OrderSummary{}, errors.New("missing timestamp")
	}
	mid := strings.LastIndex(member[:last], "|")
	if mid < 0 {
		return riskcontrol.OrderSummary{}, errors.New("missing amount")
	}

	ms, err := strconv.ParseInt(member[last+1:], 10, 64)
	if err != nil {
		return riskcontrol.OrderSummary{}, err
	}
	amount, err := decimal.NewFromString(member[mid+1 : last])
	if err != nil {
		return riskcontrol.OrderSummary{}, err
	}
	return riskcontrol.OrderSummary{
		OrderID:   member[:mid],
		Amount:    amount,
		CreatedAt: time.UnixMilli(ms),
	}, nil
}
