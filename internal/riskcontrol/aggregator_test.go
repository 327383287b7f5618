package riskcontrol

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyRiskLevel(t *testing.T) {
	cases := []struct {
		score float64
		want  RiskLevel
	}{
		{0, RiskLevelLow},
		{29.99, RiskLevelLow},
		{30, RiskLevelMedium},
		{59.99, RiskLevelMedium},
		{60, RiskLevelHigh},
		{79.99, RiskLevelHigh},
		{80, RiskLevelCritical},
		{100, RiskLevelCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyRiskLevel(tc.score), "score %.2f", tc.score)
	}
}

func TestAggregateScoreAveragesByFactorCount(t *testing.T) {
	results := []*DetectorResult{
		{Detector: DetectorPayment, Score: 10, Factors: []FraudFactor{{Kind: "credit_card_payment", Weight: 10}}},
		{Detector: DetectorVelocity, Score: 45, Factors: []FraudFactor{
			{Kind: "high_order_frequency", Weight: 30},
			{Kind: "round_amount", Weight: 15},
		}},
	}
	score, factors := aggregateScore(results)
	assert.Len(t, factors, 3)
	assert.Equal(t, 18.33, score)

	score, factors = aggregateScore([]*DetectorResult{newResult(DetectorAddress)})
	assert.Empty(t, factors)
	assert.Zero(t, score)
}

func TestAnalyzeOrderScoreBounds(t *testing.T) {
	env := newTestEnv()
	env.addBlacklist(BlacklistIP, "198.51.100.1", nil)
	env.recordOrders("cust-heavy", 8, 2000)
	cfg := DefaultConfig()
	cfg.HighRiskCountries = []string{"NG"}
	agg := env.aggregator(cfg)

	orders := []*OrderContext{baseOrder()}
	heavy := baseOrder()
	heavy.CustomerID = "cust-heavy"
	heavy.Amount = decimal.NewFromInt(9000)
	heavy.PaymentMethod = "credit_card"
	heavy.ShippingAddress.Country = "NG"
	heavy.IPAddress = "198.51.100.1"
	heavy.DeviceFingerprint = "fp-heavy"
	orders = append(orders, heavy)

	for _, order := range orders {
		res := agg.AnalyzeOrder(context.Background(), order)
		assert.GreaterOrEqual(t, res.RiskScore, 0.0)
		assert.LessOrEqual(t, res.RiskScore, 100.0)
		assert.Equal(t, ClassifyRiskLevel(res.RiskScore), res.RiskLevel)
		assert.False(t, res.Partial)
	}
}

func TestAnalyzeOrderCleanOrder(t *testing.T) {
	env := newTestEnv()
	res := env.aggregator(DefaultConfig()).AnalyzeOrder(context.Background(), baseOrder())

	assert.Zero(t, res.RiskScore)
	assert.Equal(t, RiskLevelLow, res.RiskLevel)
	assert.Empty(t, res.Alerts)
	assert.Empty(t, res.Factors)
	assert.False(t, res.ShouldBlock)
	assert.Equal(t, []string{RecommendationLow}, res.Recommendations)
}

func TestAnalyzeOrderBlacklistedEmailAlwaysBlocks(t *testing.T) {
	for _, shortCircuit := range []bool{true, false} {
		t.Run(fmt.Sprintf("short_circuit=%t", shortCircuit), func(t *testing.T) {
			env := newTestEnv()
			env.addBlacklist(BlacklistEmail, "alice@example.com", nil)
			cfg := DefaultConfig()
			cfg.BlacklistShortCircuit = shortCircuit

			order := baseOrder()
			order.PaymentMethod = "credit_card"
			order.DeviceFingerprint = "fp-1"

			agg := env.aggregator(cfg)
			res := agg.AnalyzeOrder(context.Background(), order)
			agg.Wait()

			assert.True(t, res.ShouldBlock)
			require.NotEmpty(t, res.Alerts)
			assert.Equal(t, AlertTypeBlacklistMatch, res.Alerts[0].Type)
			assert.Equal(t, SeverityCritical, res.Alerts[0].Severity)
			assert.Contains(t, res.Recommendations, categoryRecommendations[0].text)

			if shortCircuit {
				assert.Equal(t, []string{"blacklisted_email"}, factorKinds(res.Factors))
				assert.Equal(t, 100.0, res.RiskScore)
				device, _ := env.devices.Get(context.Background(), DeviceID("fp-1"))
				assert.Nil(t, device, "short-circuited analysis must not run the device analyzer")
			} else {
				// (100 + 10 + 20) / 3 factors
				assert.Equal(t, 43.33, res.RiskScore)
				assert.Equal(t, RiskLevelMedium, res.RiskLevel)
			}

			notified := env.sink.notified()
			require.Len(t, notified, 1)
			assert.Equal(t, AlertTypeBlacklistMatch, notified[0].Type)
		})
	}
}

func TestAnalyzeOrderBlacklistedDeviceByID(t *testing.T) {
	env := newTestEnv()
	svc := NewService(DefaultConfig(), env.deps())
	ctx := context.Background()

	id := DeviceID("canvas=abc;tz=UTC")
	entry, err := svc.AddToBlacklist(ctx, &BlacklistRequest{
		Type:    BlacklistDevice,
		Value:   id,
		Reason:  "device reused across chargebacks",
		AddedBy: "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, id, entry.Value)

	order := baseOrder()
	order.DeviceFingerprint = "canvas=abc;tz=UTC"
	res, err := svc.AnalyzeOrder(ctx, order)
	require.NoError(t, err)
	svc.Wait()

	assert.Contains(t, factorKinds(res.Factors), "blacklisted_device")
	assert.True(t, res.ShouldBlock)
	require.NotEmpty(t, res.Alerts)
	assert.Equal(t, AlertTypeBlacklistMatch, res.Alerts[0].Type)
}

func TestAnalyzeOrderModerateScenario(t *testing.T) {
	env := newTestEnv()
	env.recordOrders("cust-1", 1, 100)

	order := baseOrder()
	order.Amount = decimal.NewFromInt(5000)
	order.PaymentMethod = "credit_card"
	order.DeviceFingerprint = "fp-unseen"

	agg := env.aggregator(DefaultConfig())
	res := agg.AnalyzeOrder(context.Background(), order)
	agg.Wait()

	assert.ElementsMatch(t, []string{"credit_card_payment", "round_amount", "new_device"}, factorKinds(res.Factors))
	assert.Equal(t, 15.0, res.RiskScore)
	assert.Equal(t, RiskLevelLow, res.RiskLevel)
	assert.False(t, res.ShouldBlock)
	assert.Empty(t, res.Alerts)
	assert.Empty(t, env.sink.notified())
}

func TestAnalyzeOrderExpiredBlacklistEntry(t *testing.T) {
	env := newTestEnv()
	entry := env.addBlacklist(BlacklistEmail, "alice@example.com", timePtr(fixedNow.Add(-time.Minute)))

	agg := env.aggregator(DefaultConfig())
	res := agg.AnalyzeOrder(context.Background(), baseOrder())
	agg.Wait()

	assert.False(t, res.ShouldBlock)
	assert.Empty(t, res.Alerts)

	items, _, err := env.blacklist.List(context.Background(), BlacklistFilter{Type: BlacklistEmail})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, entry.ID, items[0].ID)
	assert.False(t, items[0].IsActive)
}

func TestAnalyzeOrderIsDeterministic(t *testing.T) {
	build := func() *AnalysisResult {
		env := newTestEnv()
		env.recordOrders("cust-1", 7, 900)
		env.addBlacklist(BlacklistIP, "203.0.113.7", nil)
		cfg := DefaultConfig()
		cfg.HighRiskCountries = []string{"NG"}

		order := baseOrder()
		order.Amount = decimal.NewFromInt(800)
		order.PaymentMethod = "card"
		order.ShippingAddress.Country = "NG"
		order.DeviceFingerprint = "fp-det"

		agg := env.aggregator(cfg)
		res := agg.AnalyzeOrder(context.Background(), order)
		agg.Wait()
		return res
	}

	first, second := build(), build()
	assert.Equal(t, first.RiskScore, second.RiskScore)
	assert.Equal(t, first.RiskLevel, second.RiskLevel)
	assert.Equal(t, first.ShouldBlock, second.ShouldBlock)
	assert.Equal(t, alertTypes(first.Alerts), alertTypes(second.Alerts))
	assert.Equal(t, factorKinds(first.Factors), factorKinds(second.Factors))
	assert.Equal(t, first.Recommendations, second.Recommendations)
}

func TestAnalyzeOrderDetectorFailureIsIsolated(t *testing.T) {
	env := newTestEnv()
	deps := env.deps()
	deps.History = failingHistory{}
	deps.BINs = failingBINs{}

	order := baseOrder()
	order.Amount = decimal.NewFromInt(900)
	order.PaymentMethod = "credit_card"
	order.CardBIN = "411111"
	order.DeviceFingerprint = "fp-iso"

	agg := NewAggregator(DefaultConfig(), deps)
	res := agg.AnalyzeOrder(context.Background(), order)
	agg.Wait()

	require.NotNil(t, res)
	assert.False(t, res.Partial)
	assert.ElementsMatch(t, []string{"credit_card_payment", "new_device"}, factorKinds(res.Factors))
	assert.Equal(t, 15.0, res.RiskScore)
}

func TestAnalyzeOrderProfileFailureStillReturnsDecision(t *testing.T) {
	env := newTestEnv()
	env.addBlacklist(BlacklistEmail, "alice@example.com", nil)
	deps := env.deps()
	deps.Profiles = failingProfiles{env.profiles}

	agg := NewAggregator(DefaultConfig(), deps)
	res := agg.AnalyzeOrder(context.Background(), baseOrder())
	agg.Wait()

	assert.True(t, res.ShouldBlock)
	assert.True(t, env.audit.has("profile_update_failed"))
}

func TestAnalyzeOrderTimeoutIsFailSafe(t *testing.T) {
	env := newTestEnv()
	deps := env.deps()
	deps.History = blockingHistory{}
	cfg := DefaultConfig()
	cfg.AnalysisTimeout = 50 * time.Millisecond

	order := baseOrder()
	order.DeviceFingerprint = "fp-timeout"

	agg := NewAggregator(cfg, deps)
	res := agg.AnalyzeOrder(context.Background(), order)
	agg.Wait()

	assert.True(t, res.Partial)
	assert.Equal(t, 30.0, res.RiskScore)
	assert.Equal(t, RiskLevelMedium, res.RiskLevel)
	assert.False(t, res.ShouldBlock)
	assert.Equal(t, []string{RecommendationPartial}, res.Recommendations)

	device, _ := env.devices.Get(context.Background(), DeviceID("fp-timeout"))
	assert.Nil(t, device)
	profile, _ := env.profiles.Get(context.Background(), "cust-1")
	assert.Nil(t, profile)
	assert.True(t, env.audit.has("analysis_timeout"))
}

func TestAnalyzeOrderCallerCancellationIsFailSafe(t *testing.T) {
	env := newTestEnv()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := env.aggregator(DefaultConfig()).AnalyzeOrder(ctx, baseOrder())
	assert.True(t, res.Partial)
	assert.Equal(t, RiskLevelMedium, res.RiskLevel)
}

func TestAnalyzeOrderUpdatesProfile(t *testing.T) {
	env := newTestEnv()
	agg := env.aggregator(DefaultConfig())
	ctx := context.Background()

	first := baseOrder()
	first.Amount = decimal.NewFromInt(100)
	agg.AnalyzeOrder(ctx, first)

	second := baseOrder()
	second.OrderID = "ord-2"
	second.Amount = decimal.NewFromInt(300)
	second.ShippingAddress.State = "CA"
	agg.AnalyzeOrder(ctx, second)
	agg.Wait()

	profile, err := env.profiles.Get(ctx, "cust-1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, int64(2), profile.OrderCount)
	assert.True(t, decimal.NewFromInt(400).Equal(profile.TotalSpent))
	assert.True(t, decimal.NewFromInt(200).Equal(profile.AverageOrderValue))
	assert.Equal(t, 20, profile.Subscores.Location)
	assert.Equal(t, 20.0, profile.RiskScore)
	assert.Equal(t, RiskLevelLow, profile.RiskLevel)
	assert.Equal(t, int64(0), profile.SuspiciousActivityCount)
	assert.Equal(t, fixedNow, profile.LastUpdated)
}

func TestAnalyzeOrderBlockedOrderCountsAsSuspicious(t *testing.T) {
	env := newTestEnv()
	env.addBlacklist(BlacklistIP, "203.0.113.7", nil)
	agg := env.aggregator(DefaultConfig())

	res := agg.AnalyzeOrder(context.Background(), baseOrder())
	agg.Wait()
	require.True(t, res.ShouldBlock)

	profile, _ := env.profiles.Get(context.Background(), "cust-1")
	require.NotNil(t, profile)
	assert.Equal(t, int64(1), profile.SuspiciousActivityCount)
	assert.Equal(t, 80, profile.Subscores.Behavior)
}

func TestAnalyzeOrderSuspiciousHistoryFeedsBehavior(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.profiles.Put(context.Background(), &RiskProfile{
		CustomerID:              "cust-1",
		SuspiciousActivityCount: 5,
	}))

	agg := env.aggregator(DefaultConfig())
	res := agg.AnalyzeOrder(context.Background(), baseOrder())
	agg.Wait()

	assert.Equal(t, []string{"suspicious_history"}, factorKinds(res.Factors))
	assert.Equal(t, 50.0, res.RiskScore)
	assert.Empty(t, res.Alerts, "behavior never raises alerts")
	assert.Contains(t, res.Recommendations, RecommendationMedium)
}

func TestAnalyzeOrderDeviceSharingRaisesAccountTakeover(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	require.NoError(t, env.devices.Put(ctx, &DeviceFingerprint{
		ID:              DeviceID("fp-shared"),
		OwnerCustomerID: "cust-other",
		TrustScore:      50,
	}))

	order := baseOrder()
	order.DeviceFingerprint = "fp-shared"

	agg := env.aggregator(DefaultConfig())
	res := agg.AnalyzeOrder(ctx, order)
	agg.Wait()

	require.Len(t, res.Alerts, 1)
	assert.Equal(t, AlertTypeAccountTakeover, res.Alerts[0].Type)
	assert.Equal(t, SeverityHigh, res.Alerts[0].Severity)
	assert.Equal(t, 60, res.Alerts[0].Score)
	assert.Equal(t, 60.0, res.RiskScore)
	assert.False(t, res.ShouldBlock)

	stored, err := env.alerts.Get(ctx, res.Alerts[0].ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, []string{"device_sharing"}, []string(stored.FactorKinds))
	assert.Len(t, env.sink.notified(), 1)
}

func TestAnalyzeOrderMediumAlertsAreNotNotified(t *testing.T) {
	env := newTestEnv()
	cfg := DefaultConfig()
	cfg.HighRiskCountries = []string{"NG"}
	order := baseOrder()
	order.ShippingAddress.Country = "NG"

	agg := env.aggregator(cfg)
	res := agg.AnalyzeOrder(context.Background(), order)
	agg.Wait()

	require.Len(t, res.Alerts, 1)
	assert.Equal(t, AlertTypeLocationAnomaly, res.Alerts[0].Type)
	assert.Equal(t, SeverityMedium, res.Alerts[0].Severity)
	assert.Empty(t, env.sink.notified())
}

func TestAnalyzeOrderScoreThresholdBlocks(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	require.NoError(t, env.devices.Put(ctx, &DeviceFingerprint{
		ID:              DeviceID("fp-bad"),
		OwnerCustomerID: "cust-other",
		TrustScore:      10,
	}))
	cfg := DefaultConfig()
	cfg.BlockThreshold = 90

	order := baseOrder()
	order.DeviceFingerprint = "fp-bad"

	agg := env.aggregator(cfg)
	res := agg.AnalyzeOrder(ctx, order)
	agg.Wait()

	// device_sharing 60 + low_trust_device 40 over two factors
	assert.Equal(t, 50.0, res.RiskScore)
	assert.False(t, res.ShouldBlock)

	cfg.BlockThreshold = 50
	res = env.aggregator(cfg).AnalyzeOrder(ctx, order)
	assert.True(t, res.ShouldBlock)
}

func TestAnalyzeOrderConcurrentSameCustomer(t *testing.T) {
	env := newTestEnv()
	agg := env.aggregator(DefaultConfig())

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order := baseOrder()
			order.OrderID = fmt.Sprintf("ord-%d", i)
			order.Amount = decimal.NewFromInt(10)
			agg.AnalyzeOrder(context.Background(), order)
		}(i)
	}
	wg.Wait()
	agg.Wait()

	profile, err := env.profiles.Get(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(n), profile.OrderCount)
	assert.True(t, decimal.NewFromInt(10*n).Equal(profile.TotalSpent))
}

func TestServiceAnalyzeOrderValidates(t *testing.T) {
	env := newTestEnv()
	svc := NewService(DefaultConfig(), env.deps())

	_, err := svc.AnalyzeOrder(context.Background(), &OrderContext{})
	assert.ErrorIs(t, err, ErrInvalidOrder)

	order := baseOrder()
	order.Amount = decimal.NewFromInt(-1)
	_, err = svc.AnalyzeOrder(context.Background(), order)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	res, err := svc.AnalyzeOrder(context.Background(), baseOrder())
	require.NoError(t, err)
	assert.Equal(t, RiskLevelLow, res.RiskLevel)
	svc.Wait()
}
