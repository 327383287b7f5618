package riskcontrol

import (
	"context"
	"fmt"
)

const (
	behaviorRiskyAbove     = 30
	suspiciousHistoryLimit = 3
	weightSuspiciousHist   = 50
)

// BehaviorAnalyzer 历史可疑行为分析
type BehaviorAnalyzer struct {
	profiles RiskProfileStore
}

// NewBehaviorAnalyzer 创建行为分析器
func NewBehaviorAnalyzer(profiles RiskProfileStore) *BehaviorAnalyzer {
	return &BehaviorAnalyzer{profiles: profiles}
}

func (a *BehaviorAnalyzer) Name() string { return DetectorBehavior }

// Detect 读取画像中的可疑次数
func (a *BehaviorAnalyzer) Detect(ctx context.Context, order *OrderContext) (*DetectorResult, error) {
	result := newResult(DetectorBehavior)
	if a.profiles == nil {
		return result, nil
	}

	profile, err := a.profiles.Get(ctx, order.CustomerID)
	if err != nil {
		return result, fmt.Errorf("risk profile lookup: %w", err)
	}
	if profile != nil && profile.SuspiciousActivityCount > suspiciousHistoryLimit {
		result.add(FraudFactor{
			Kind:        "suspicious_history",
			Description: fmt.Sprintf("%d prior suspicious orders", profile.SuspiciousActivityCount),
			Weight:      weightSuspiciousHist,
			Value:       profile.SuspiciousActivityCount,
		})
	}

	result.IsRisky = result.Score > behaviorRiskyAbove
	return result, nil
}
