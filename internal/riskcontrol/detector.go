package riskcontrol

import (
	"context"
	"errors"
	"time"
)

// 检测器名称
const (
	DetectorVelocity  = "velocity"
	DetectorPayment   = "payment"
	DetectorAddress   = "address"
	DetectorDevice    = "device"
	DetectorBlacklist = "blacklist"
	DetectorBehavior  = "behavior"
)

// Detector 单维度风险检测器
//
// Detect 总是返回非 nil 结果；error 表示外部依赖失败，结果已按失败放行处理。
type Detector interface {
	Name() string
	Detect(ctx context.Context, order *OrderContext) (*DetectorResult, error)
}

// DetectorResult 检测器输出
type DetectorResult struct {
	Detector string        `json:"detector"`
	Score    int           `json:"score"`
	IsRisky  bool          `json:"is_risky"`
	Factors  []FraudFactor `json:"factors"`

	commits []func(context.Context) error
}

func newResult(detector string) *DetectorResult {
	return &DetectorResult{Detector: detector, Factors: []FraudFactor{}}
}

func (r *DetectorResult) add(f FraudFactor) {
	r.Factors = append(r.Factors, f)
	r.Score += f.Weight
}

func (r *DetectorResult) onCommit(fn func(context.Context) error) {
	r.commits = append(r.commits, fn)
}

// HasFactor 是否包含指定因子
func (r *DetectorResult) HasFactor(kind string) bool {
	for _, f := range r.Factors {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// Commit 应用检测期间延迟的写操作；聚合器在所有检测器结束后调用
func (r *DetectorResult) Commit(ctx context.Context) error {
	var errs []error
	for _, fn := range r.commits {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.commits = nil
	return errors.Join(errs...)
}

type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
