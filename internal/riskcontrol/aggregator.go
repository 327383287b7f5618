package riskcontrol

import (
	"context"
	"math"
	"time"

	"fraud-risk-engine/pkg/logger"
	"fraud-risk-engine/pkg/metrics"
	"fraud-risk-engine/pkg/traces"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// Config 引擎配置
type Config struct {
	VelocityWindow        time.Duration
	LargeAmountThreshold  decimal.Decimal
	BlockThreshold        float64
	AnalysisTimeout       time.Duration
	WriteTimeout          time.Duration
	HighRiskCountries     []string
	PhoneRegion           string
	BlacklistShortCircuit bool
}

// DefaultConfig 默认引擎配置
func DefaultConfig() Config {
	return Config{
		VelocityWindow:        24 * time.Hour,
		LargeAmountThreshold:  decimal.NewFromInt(5000),
		BlockThreshold:        95,
		AnalysisTimeout:       3 * time.Second,
		WriteTimeout:          5 * time.Second,
		PhoneRegion:           "US",
		BlacklistShortCircuit: true,
	}
}

// Dependencies 引擎依赖的外部能力
type Dependencies struct {
	History   OrderHistoryLookup
	Profiles  RiskProfileStore
	Devices   DeviceTrustRegistry
	Blacklist BlacklistRegistry
	BINs      BINLookup
	Alerts    *AlertManager
	Audit     AuditSink
	// Clock 为空时使用 time.Now
	Clock func() time.Time
}

// Aggregator 多检测器风险聚合
type Aggregator struct {
	cfg       Config
	blacklist Detector
	detectors []Detector
	profiles  RiskProfileStore
	alerts    *AlertManager
	audit     *auditor
	clock     clock
}

// NewAggregator 创建风险聚合器
func NewAggregator(cfg Config, deps Dependencies) *Aggregator {
	def := DefaultConfig()
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = def.AnalysisTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BlockThreshold <= 0 {
		cfg.BlockThreshold = def.BlockThreshold
	}
	if cfg.VelocityWindow <= 0 {
		cfg.VelocityWindow = def.VelocityWindow
	}

	clk := clock(deps.Clock)

	velocity := NewVelocityDetector(deps.History, cfg.VelocityWindow, cfg.LargeAmountThreshold)
	velocity.clock = clk
	device := NewDeviceFingerprintAnalyzer(deps.Devices)
	device.clock = clk
	matcher := NewBlacklistMatcher(deps.Blacklist, cfg.PhoneRegion)
	matcher.clock = clk

	return &Aggregator{
		cfg:       cfg,
		blacklist: matcher,
		detectors: []Detector{
			velocity,
			NewPaymentAnomalyDetector(deps.BINs),
			NewAddressMismatchDetector(cfg.HighRiskCountries),
			device,
			NewBehaviorAnalyzer(deps.Profiles),
		},
		profiles: deps.Profiles,
		alerts:   deps.Alerts,
		audit:    newAuditor(deps.Audit, cfg.WriteTimeout),
		clock:    clk,
	}
}

// AnalyzeOrder 分析订单并给出决策，总是返回结果
func (a *Aggregator) AnalyzeOrder(ctx context.Context, order *OrderContext) *AnalysisResult {
	start := time.Now()
	defer func() { metrics.AnalysisDuration.Observe(time.Since(start).Seconds()) }()

	ctx, span := traces.StartSpan(ctx, "risk.AnalyzeOrder",
		traces.CustomerID(order.CustomerID), traces.OrderID(order.OrderID))
	defer span.End()

	log := logger.WithFields(map[string]interface{}{
		"customer_id": order.CustomerID,
		"order_id":    order.OrderID,
	})

	analysisCtx, cancel := context.WithTimeout(ctx, a.cfg.AnalysisTimeout)
	defer cancel()

	results, ok := a.runDetectors(analysisCtx, order)
	if !ok {
		log.Warnf("risk analysis timed out after %s, returning partial result", a.cfg.AnalysisTimeout)
		span.SetStatus(codes.Error, "analysis timeout")
		metrics.PartialTotal.Inc()
		metrics.AnalysesTotal.WithLabelValues(string(RiskLevelMedium)).Inc()
		a.audit.emit("analysis_timeout", map[string]interface{}{
			"customer_id": order.CustomerID,
			"order_id":    order.OrderID,
			"timeout":     a.cfg.AnalysisTimeout.String(),
		})
		return a.partialResult(order)
	}

	// 检测器全部结束后才落库，调用方取消不影响写入
	writeCtx, writeCancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.WriteTimeout)
	defer writeCancel()

	for _, r := range results {
		if err := r.Commit(writeCtx); err != nil {
			log.Errorf("detector %s commit failed: %v", r.Detector, err)
			a.audit.emit("detector_commit_failed", map[string]interface{}{
				"customer_id": order.CustomerID,
				"order_id":    order.OrderID,
				"detector":    r.Detector,
				"error":       err.Error(),
			})
		}
	}

	score, factors := aggregateScore(results)
	level := ClassifyRiskLevel(score)

	alerts := a.raiseAlerts(writeCtx, order, results)
	shouldBlock := score >= a.cfg.BlockThreshold
	for _, alert := range alerts {
		if alert.Severity == SeverityCritical {
			shouldBlock = true
		}
	}

	a.updateProfile(writeCtx, order, results, score, level, shouldBlock)

	result := &AnalysisResult{
		OrderID:         order.OrderID,
		CustomerID:      order.CustomerID,
		RiskScore:       score,
		RiskLevel:       level,
		Alerts:          alerts,
		ShouldBlock:     shouldBlock,
		Recommendations: buildRecommendations(score, results),
		Factors:         factors,
		AnalyzedAt:      a.clock.now(),
	}

	span.SetAttributes(
		attribute.Float64("risk.score", score),
		attribute.String("risk.level", string(level)),
		attribute.Bool("risk.block", shouldBlock),
	)
	metrics.AnalysesTotal.WithLabelValues(string(level)).Inc()
	if shouldBlock {
		metrics.BlockedTotal.Inc()
	}

	kinds := make([]string, 0, len(factors))
	for _, f := range factors {
		kinds = append(kinds, f.Kind)
	}
	a.audit.emit("order_analyzed", map[string]interface{}{
		"customer_id":  order.CustomerID,
		"order_id":     order.OrderID,
		"risk_score":   score,
		"risk_level":   level,
		"should_block": shouldBlock,
		"factors":      kinds,
		"alerts":       len(alerts),
	})
	log.Infof("order analyzed: score=%.2f level=%s block=%t factors=%d", score, level, shouldBlock, len(factors))

	return result
}

// runDetectors 黑名单先行，其余并发；超时返回 false
func (a *Aggregator) runDetectors(ctx context.Context, order *OrderContext) ([]*DetectorResult, bool) {
	var first *DetectorResult
	if !awaitDone(ctx, func() { first = a.run(ctx, a.blacklist, order) }) {
		return nil, false
	}

	results := make([]*DetectorResult, 0, len(a.detectors)+1)
	results = append(results, first)
	if a.cfg.BlacklistShortCircuit && first.HasFactor("blacklisted_email") {
		return results, true
	}

	out := make([]*DetectorResult, len(a.detectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range a.detectors {
		i, d := i, d
		g.Go(func() error {
			out[i] = a.run(gctx, d, order)
			return nil
		})
	}
	if !awaitDone(ctx, func() { _ = g.Wait() }) {
		return nil, false
	}
	return append(results, out...), true
}

// awaitDone 在 ctx 结束前等待 fn 完成
func awaitDone(ctx context.Context, fn func()) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
		return ctx.Err() == nil
	case <-ctx.Done():
		return false
	}
}

func (a *Aggregator) run(ctx context.Context, d Detector, order *OrderContext) *DetectorResult {
	ctx, span := traces.StartSpan(ctx, "risk.detector."+d.Name(), traces.Detector(d.Name()))
	defer span.End()

	res, err := d.Detect(ctx, order)
	if res == nil {
		res = newResult(d.Name())
	}
	if err != nil && ctx.Err() == nil {
		span.RecordError(err)
		metrics.DetectorFailuresTotal.WithLabelValues(d.Name()).Inc()
		logger.WithFields(map[string]interface{}{
			"customer_id": order.CustomerID,
			"order_id":    order.OrderID,
			"detector":    d.Name(),
		}).Warnf("detector failed open: %v", err)
	}
	return res
}

// aggregateScore 子分数之和除以因子个数，上限 100，保留两位小数
func aggregateScore(results []*DetectorResult) (float64, []FraudFactor) {
	factors := []FraudFactor{}
	total := 0
	for _, r := range results {
		factors = append(factors, r.Factors...)
		total += r.Score
	}
	if len(factors) == 0 {
		return 0, factors
	}
	score := math.Min(100, float64(total)/float64(len(factors)))
	return math.Round(score*100) / 100, factors
}

type alertRule struct {
	alertType AlertType
	severity  AlertSeverity
}

var alertRules = map[string]alertRule{
	DetectorVelocity:  {AlertTypeVelocity, SeverityHigh},
	DetectorPayment:   {AlertTypePaymentAnomaly, SeverityMedium},
	DetectorAddress:   {AlertTypeLocationAnomaly, SeverityMedium},
	DetectorDevice:    {AlertTypeDeviceAnomaly, SeverityHigh},
	DetectorBlacklist: {AlertTypeBlacklistMatch, SeverityCritical},
}

func (a *Aggregator) raiseAlerts(ctx context.Context, order *OrderContext, results []*DetectorResult) []*FraudAlert {
	alerts := []*FraudAlert{}
	for _, r := range results {
		rule, ok := alertRules[r.Detector]
		if !ok || !r.IsRisky {
			continue
		}
		if r.Detector == DetectorDevice && r.HasFactor("device_sharing") {
			rule.alertType = AlertTypeAccountTakeover
		}

		in := AlertInput{
			CustomerID:  order.CustomerID,
			OrderID:     order.OrderID,
			Type:        rule.alertType,
			Severity:    rule.severity,
			Score:       r.Score,
			Factors:     r.Factors,
			Description: describe(r),
		}
		if a.alerts == nil {
			alerts = append(alerts, &FraudAlert{
				CustomerID: in.CustomerID, OrderID: in.OrderID, Type: in.Type, Severity: in.Severity,
				Score: in.Score, Factors: in.Factors, Status: AlertStatusPending, Description: in.Description,
			})
			continue
		}

		alert, err := a.alerts.CreateAlert(ctx, in)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"customer_id": order.CustomerID,
				"order_id":    order.OrderID,
				"detector":    r.Detector,
			}).Errorf("alert persistence failed: %v", err)
			a.audit.emit("alert_persist_failed", map[string]interface{}{
				"customer_id": order.CustomerID,
				"order_id":    order.OrderID,
				"alert_type":  in.Type,
				"error":       err.Error(),
			})
		}
		if alert != nil {
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

func describe(r *DetectorResult) string {
	desc := r.Detector + " detector flagged order:"
	for i, f := range r.Factors {
		if i > 0 {
			desc += ","
		}
		desc += " " + f.Kind
	}
	return desc
}

func subscoresOf(results []*DetectorResult) Subscores {
	var s Subscores
	for _, r := range results {
		switch r.Detector {
		case DetectorVelocity:
			s.Velocity = r.Score
		case DetectorPayment:
			s.Payment = r.Score
		case DetectorAddress:
			s.Location = r.Score
		case DetectorDevice:
			s.Device = r.Score
		case DetectorBehavior, DetectorBlacklist:
			s.Behavior += r.Score
		}
	}
	if s.Behavior > 100 {
		s.Behavior = 100
	}
	return s
}

func (a *Aggregator) updateProfile(ctx context.Context, order *OrderContext, results []*DetectorResult, score float64, level RiskLevel, blocked bool) {
	if a.profiles == nil {
		return
	}
	now := a.clock.now()
	subscores := subscoresOf(results)

	_, err := a.profiles.Update(ctx, order.CustomerID, func(p *RiskProfile) error {
		p.RiskScore = score
		p.RiskLevel = level
		p.Subscores = subscores
		p.LastUpdated = now
		p.OrderCount++
		p.TotalSpent = p.TotalSpent.Add(order.Amount)
		p.AverageOrderValue = p.TotalSpent.Div(decimal.NewFromInt(p.OrderCount)).Round(2)
		if blocked || level == RiskLevelHigh || level == RiskLevelCritical {
			p.SuspiciousActivityCount++
		}
		return nil
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"customer_id": order.CustomerID,
			"order_id":    order.OrderID,
		}).Errorf("risk profile update failed: %v", err)
		a.audit.emit("profile_update_failed", map[string]interface{}{
			"customer_id": order.CustomerID,
			"order_id":    order.OrderID,
			"error":       err.Error(),
		})
	}
}

func (a *Aggregator) partialResult(order *OrderContext) *AnalysisResult {
	return &AnalysisResult{
		OrderID:         order.OrderID,
		CustomerID:      order.CustomerID,
		RiskScore:       MediumThreshold,
		RiskLevel:       RiskLevelMedium,
		Alerts:          []*FraudAlert{},
		ShouldBlock:     false,
		Recommendations: []string{RecommendationPartial},
		Factors:         []FraudFactor{},
		Partial:         true,
		AnalyzedAt:      a.clock.now(),
	}
}

// Wait 等待在途的审计与通知，用于优雅退出
func (a *Aggregator) Wait() {
	a.audit.wait()
	if a.alerts != nil {
		a.alerts.Wait()
	}
}
