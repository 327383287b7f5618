package riskcontrol

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	velocityOrderLimit  = 5
	velocityRiskyAbove  = 20
	weightHighFrequency = 30
	weightHighAmount    = 40
	weightRoundAmount   = 15
)

var (
	roundAmountUnit  = decimal.NewFromInt(100)
	roundAmountFloor = decimal.NewFromInt(500)
)

// VelocityDetector 时间窗口内下单频率与金额检测
type VelocityDetector struct {
	history     OrderHistoryLookup
	window      time.Duration
	largeAmount decimal.Decimal
	clock       clock
}

// NewVelocityDetector 创建频率检测器
func NewVelocityDetector(history OrderHistoryLookup, window time.Duration, largeAmount decimal.Decimal) *VelocityDetector {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &VelocityDetector{history: history, window: window, largeAmount: largeAmount}
}

func (d *VelocityDetector) Name() string { return DetectorVelocity }

// Detect 历史查询失败时返回空结果
func (d *VelocityDetector) Detect(ctx context.Context, order *OrderContext) (*DetectorResult, error) {
	result := newResult(DetectorVelocity)
	if d.history == nil {
		return result, nil
	}

	orders, err := d.history.ListOrdersSince(ctx, order.CustomerID, d.clock.now().Add(-d.window))
	if err != nil {
		return result, fmt.Errorf("order history lookup: %w", err)
	}

	if len(orders) > velocityOrderLimit {
		result.add(FraudFactor{
			Kind:        "high_order_frequency",
			Description: fmt.Sprintf("%d orders within %s", len(orders), d.window),
			Weight:      weightHighFrequency,
			Value:       len(orders),
		})
	}

	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.Amount)
	}
	if total.GreaterThan(d.largeAmount) {
		result.add(FraudFactor{
			Kind:        "high_amount_velocity",
			Description: fmt.Sprintf("window spend %s exceeds %s", total.StringFixed(2), d.largeAmount.StringFixed(2)),
			Weight:      weightHighAmount,
			Value:       total.StringFixed(2),
		})
	}

	if order.Amount.GreaterThan(roundAmountFloor) && order.Amount.Mod(roundAmountUnit).IsZero() {
		result.add(FraudFactor{
			Kind:        "round_amount",
			Description: "order amount is a round multiple of 100",
			Weight:      weightRoundAmount,
			Value:       order.Amount.StringFixed(2),
		})
	}

	result.IsRisky = result.Score > velocityRiskyAbove
	return result, nil
}
