package riskcontrol

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

const profileShards = 64

// MemoryProfileStore 内存画像存储，按客户分片加锁
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*RiskProfile
	shards   [profileShards]sync.Mutex
}

// NewMemoryProfileStore 创建内存画像存储
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]*RiskProfile)}
}

func (s *MemoryProfileStore) shard(customerID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(customerID))
	return &s.shards[h.Sum32()%profileShards]
}

// Get 获取画像副本
func (s *MemoryProfileStore) Get(_ context.Context, customerID string) (*RiskProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[customerID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// Put 覆盖写入
func (s *MemoryProfileStore) Put(_ context.Context, profile *RiskProfile) error {
	cp := *profile
	s.mu.Lock()
	s.profiles[profile.CustomerID] = &cp
	s.mu.Unlock()
	return nil
}

// Update 分片锁内读-改-写
func (s *MemoryProfileStore) Update(ctx context.Context, customerID string, fn func(*RiskProfile) error) (*RiskProfile, error) {
	lock := s.shard(customerID)
	lock.Lock()
	defer lock.Unlock()

	current, _ := s.Get(ctx, customerID)
	if current == nil {
		current = &RiskProfile{CustomerID: customerID, RiskLevel: RiskLevelLow, CreatedAt: time.Now()}
	}
	if err := fn(current); err != nil {
		return nil, err
	}
	current.CustomerID = customerID
	current.UpdatedAt = time.Now()
	if err := s.Put(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// MemoryDeviceRegistry 内存设备登记
type MemoryDeviceRegistry struct {
	mu      sync.RWMutex
	devices map[string]*DeviceFingerprint
}

// NewMemoryDeviceRegistry 创建内存设备登记
func NewMemoryDeviceRegistry() *MemoryDeviceRegistry {
	return &MemoryDeviceRegistry{devices: make(map[string]*DeviceFingerprint)}
}

// Get 获取设备副本
func (r *MemoryDeviceRegistry) Get(_ context.Context, id string) (*DeviceFingerprint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

// Put 后写覆盖
func (r *MemoryDeviceRegistry) Put(_ context.Context, device *DeviceFingerprint) error {
	cp := *device
	r.mu.Lock()
	r.devices[device.ID] = &cp
	r.mu.Unlock()
	return nil
}

// MemoryBlacklist 内存黑名单
type MemoryBlacklist struct {
	mu      sync.RWMutex
	entries map[string]*BlacklistEntry
}

// NewMemoryBlacklist 创建内存黑名单
func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{entries: make(map[string]*BlacklistEntry)}
}

// Find 优先返回永不过期条目，其次过期时间最晚的
func (b *MemoryBlacklist) Find(_ context.Context, blType BlacklistType, value string) (*BlacklistEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var best *BlacklistEntry
	for _, e := range b.entries {
		if !e.IsActive || e.Type != blType || e.Value != value {
			continue
		}
		if best == nil || laterExpiry(e, best) {
			best = e
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func laterExpiry(a, b *BlacklistEntry) bool {
	if b.ExpiresAt == nil {
		return false
	}
	if a.ExpiresAt == nil {
		return true
	}
	return a.ExpiresAt.After(*b.ExpiresAt)
}

// Deactivate 停用条目
func (b *MemoryBlacklist) Deactivate(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	if !ok {
		return ErrBlacklistNotFound
	}
	e.IsActive = false
	return nil
}

// Add 新增条目
func (b *MemoryBlacklist) Add(_ context.Context, entry *BlacklistEntry) error {
	cp := *entry
	b.mu.Lock()
	b.entries[entry.ID] = &cp
	b.mu.Unlock()
	return nil
}

// Remove 删除条目
func (b *MemoryBlacklist) Remove(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[id]; !ok {
		return ErrBlacklistNotFound
	}
	delete(b.entries, id)
	return nil
}

// List 按加入时间倒序分页
func (b *MemoryBlacklist) List(_ context.Context, filter BlacklistFilter) ([]*BlacklistEntry, int64, error) {
	b.mu.RLock()
	var items []*BlacklistEntry
	for _, e := range b.entries {
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.ActiveOnly && !e.IsActive {
			continue
		}
		cp := *e
		items = append(items, &cp)
	}
	b.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].AddedAt.After(items[j].AddedAt) })
	total := int64(len(items))
	return paginate(items, filter.Page, filter.PageSize), total, nil
}

// DeactivateExpired 批量停用已过期条目
func (b *MemoryBlacklist) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for _, e := range b.entries {
		if e.IsActive && e.Expired(now) {
			e.IsActive = false
			n++
		}
	}
	return n, nil
}

// MemoryAlertStore 内存告警存储
type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts map[string]*FraudAlert
}

// NewMemoryAlertStore 创建内存告警存储
func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{alerts: make(map[string]*FraudAlert)}
}

// Create 创建告警
func (s *MemoryAlertStore) Create(_ context.Context, alert *FraudAlert) error {
	cp := *alert
	s.mu.Lock()
	s.alerts[alert.ID] = &cp
	s.mu.Unlock()
	return nil
}

// Get 获取告警
func (s *MemoryAlertStore) Get(_ context.Context, id string) (*FraudAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

// Update 更新告警
func (s *MemoryAlertStore) Update(_ context.Context, alert *FraudAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[alert.ID]; !ok {
		return ErrAlertNotFound
	}
	cp := *alert
	s.alerts[alert.ID] = &cp
	return nil
}

// List 按创建时间倒序分页
func (s *MemoryAlertStore) List(_ context.Context, filter AlertFilter) ([]*FraudAlert, int64, error) {
	s.mu.RLock()
	var items []*FraudAlert
	for _, a := range s.alerts {
		if filter.CustomerID != "" && a.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.FactorKind != "" && !containsKind(a.FactorKinds, filter.FactorKind) {
			continue
		}
		cp := *a
		items = append(items, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	total := int64(len(items))
	return paginate(items, filter.Page, filter.PageSize), total, nil
}

func containsKind(kinds []string, kind string) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, page, pageSize int) []T {
	offset, limit := pageOf(page, pageSize)
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// MemoryOrderHistory 内存订单历史，用于 memory 存储模式与测试
type MemoryOrderHistory struct {
	mu     sync.RWMutex
	orders map[string][]OrderSummary
}

// NewMemoryOrderHistory 创建内存订单历史
func NewMemoryOrderHistory() *MemoryOrderHistory {
	return &MemoryOrderHistory{orders: make(map[string][]OrderSummary)}
}

// Record 记录订单
func (h *MemoryOrderHistory) Record(customerID string, order OrderSummary) {
	h.mu.Lock()
	h.orders[customerID] = append(h.orders[customerID], order)
	h.mu.Unlock()
}

// ListOrdersSince 返回 since 之后的订单
func (h *MemoryOrderHistory) ListOrdersSince(_ context.Context, customerID string, since time.Time) ([]OrderSummary, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []OrderSummary
	for _, o := range h.orders[customerID] {
		if !o.CreatedAt.Before(since) {
			out = append(out, o)
		}
	}
	return out, nil
}
