package riskcontrol

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type recordingSink struct {
	mu     sync.Mutex
	alerts []*FraudAlert
	err    error
}

func (s *recordingSink) Notify(_ context.Context, alert *FraudAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return s.err
}

func (s *recordingSink) notified() []*FraudAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*FraudAlert(nil), s.alerts...)
}

type recordingAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *recordingAudit) Log(_ context.Context, event string, _ map[string]interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *recordingAudit) has(event string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.events {
		if e == event {
			return true
		}
	}
	return false
}

type failingHistory struct{}

func (failingHistory) ListOrdersSince(context.Context, string, time.Time) ([]OrderSummary, error) {
	return nil, errors.New("history backend unavailable")
}

type blockingHistory struct{}

func (blockingHistory) ListOrdersSince(ctx context.Context, _ string, _ time.Time) ([]OrderSummary, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingBINs struct{}

func (failingBINs) Lookup(context.Context, string) (*BINInfo, error) {
	return nil, errors.New("bin service down")
}

type failingProfiles struct {
	*MemoryProfileStore
}

func (failingProfiles) Update(context.Context, string, func(*RiskProfile) error) (*RiskProfile, error) {
	return nil, errors.New("profile store write failed")
}

type testEnv struct {
	history   *MemoryOrderHistory
	profiles  *MemoryProfileStore
	devices   *MemoryDeviceRegistry
	blacklist *MemoryBlacklist
	alerts    *MemoryAlertStore
	sink      *recordingSink
	audit     *recordingAudit
	manager   *AlertManager
}

func newTestEnv() *testEnv {
	e := &testEnv{
		history:   NewMemoryOrderHistory(),
		profiles:  NewMemoryProfileStore(),
		devices:   NewMemoryDeviceRegistry(),
		blacklist: NewMemoryBlacklist(),
		alerts:    NewMemoryAlertStore(),
		sink:      &recordingSink{},
		audit:     &recordingAudit{},
	}
	e.manager = NewAlertManager(e.alerts, e.sink, time.Second)
	e.manager.clock = fixedClock
	return e
}

func (e *testEnv) deps() Dependencies {
	return Dependencies{
		History:   e.history,
		Profiles:  e.profiles,
		Devices:   e.devices,
		Blacklist: e.blacklist,
		Alerts:    e.manager,
		Audit:     e.audit,
		Clock:     fixedClock,
	}
}

func (e *testEnv) aggregator(cfg Config) *Aggregator {
	return NewAggregator(cfg, e.deps())
}

func (e *testEnv) addBlacklist(t BlacklistType, value string, expiresAt *time.Time) *BlacklistEntry {
	normalized, err := NormalizeBlacklistValue(t, value, "US")
	if err != nil {
		panic(err)
	}
	entry := &BlacklistEntry{
		ID:        string(t) + ":" + normalized,
		Type:      t,
		Value:     normalized,
		Reason:    "chargeback fraud",
		Severity:  SeverityCritical,
		AddedAt:   fixedNow.Add(-48 * time.Hour),
		ExpiresAt: expiresAt,
		IsActive:  true,
	}
	_ = e.blacklist.Add(context.Background(), entry)
	return entry
}

func (e *testEnv) recordOrders(customerID string, n int, amount int64) {
	for i := 0; i < n; i++ {
		e.history.Record(customerID, OrderSummary{
			OrderID:   customerID + "-prior-" + string(rune('a'+i)),
			Amount:    decimal.NewFromInt(amount),
			CreatedAt: fixedNow.Add(-time.Duration(i+1) * time.Hour),
		})
	}
}

func baseOrder() *OrderContext {
	return &OrderContext{
		CustomerID:    "cust-1",
		OrderID:       "ord-1",
		CustomerEmail: "alice@example.com",
		Amount:        decimal.NewFromInt(120),
		Currency:      "USD",
		PaymentMethod: "paypal",
		ShippingAddress: &Address{
			Line1: "1 Main St", City: "Austin", State: "TX", PostalCode: "73301", Country: "US",
		},
		BillingAddress: &Address{
			Line1: "1 Main St", City: "Austin", State: "TX", PostalCode: "73301", Country: "US",
		},
		IPAddress: "203.0.113.7",
	}
}

func factorKinds(factors []FraudFactor) []string {
	kinds := make([]string, 0, len(factors))
	for _, f := range factors {
		kinds = append(kinds, f.Kind)
	}
	return kinds
}

func alertTypes(alerts []*FraudAlert) []AlertType {
	types := make([]AlertType, 0, len(alerts))
	for _, a := range alerts {
		types = append(types, a.Type)
	}
	return types
}

func timePtr(t time.Time) *time.Time { return &t }
