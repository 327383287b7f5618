package order

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository 进程内订单仓储，memory 存储驱动使用
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID uint
	orders map[string]*Order
}

// NewMemoryRepository 创建内存订单仓储
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[string]*Order)}
}

func (r *MemoryRepository) Create(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.OrderID]; ok {
		return ErrDuplicate
	}
	r.nextID++
	o.ID = r.nextID
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	o.UpdatedAt = o.CreatedAt
	cp := *o
	r.orders[o.OrderID] = &cp
	return nil
}

func (r *MemoryRepository) GetByOrderID(_ context.Context, orderID string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *MemoryRepository) customerOrders(customerID string, since time.Time) []*Order {
	var out []*Order
	for _, o := range r.orders {
		if o.CustomerID == customerID && !o.CreatedAt.Before(since) {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *MemoryRepository) ListSince(_ context.Context, customerID string, since time.Time) ([]*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.customerOrders(customerID, since), nil
}

func (r *MemoryRepository) ListByCustomer(_ context.Context, customerID string, page, pageSize int) ([]*Order, int64, error) {
	r.mu.RLock()
	all := r.customerOrders(customerID, time.Time{})
	r.mu.RUnlock()

	// 最新的在前
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []*Order{}, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, orderID string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	return nil
}
