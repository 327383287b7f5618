package riskcontrol

import (
	"context"
	"errors"
	"fmt"
)

const (
	scoreBlacklistedEmail = 100
	scoreBlacklistedOther = 80
)

// BlacklistMatcher 黑名单命中检测
//
// 查找时遇到的过期条目会在 Commit 时停用。
type BlacklistMatcher struct {
	registry    BlacklistRegistry
	phoneRegion string
	clock       clock
}

// NewBlacklistMatcher 创建黑名单检测器
func NewBlacklistMatcher(registry BlacklistRegistry, phoneRegion string) *BlacklistMatcher {
	return &BlacklistMatcher{registry: registry, phoneRegion: phoneRegion}
}

func (m *BlacklistMatcher) Name() string { return DetectorBlacklist }

type blacklistProbe struct {
	blType BlacklistType
	raw    string
	kind   string
	score  int
}

// Detect 分数取各命中项的最大值
func (m *BlacklistMatcher) Detect(ctx context.Context, order *OrderContext) (*DetectorResult, error) {
	result := newResult(DetectorBlacklist)
	if m.registry == nil {
		return result, nil
	}

	probes := []blacklistProbe{
		{BlacklistEmail, order.CustomerEmail, "blacklisted_email", scoreBlacklistedEmail},
		{BlacklistIP, order.IPAddress, "blacklisted_ip", scoreBlacklistedOther},
		{BlacklistPhone, order.CustomerPhone, "blacklisted_phone", scoreBlacklistedOther},
		{BlacklistDevice, order.DeviceFingerprint, "blacklisted_device", scoreBlacklistedOther},
		{BlacklistCard, order.CardBIN, "blacklisted_card", scoreBlacklistedOther},
	}

	now := m.clock.now()
	var errs []error
	for _, p := range probes {
		if p.raw == "" {
			continue
		}
		value, err := NormalizeBlacklistValue(p.blType, p.raw, m.phoneRegion)
		if err != nil {
			// 无法规范化的值不可能命中
			continue
		}

		entry, err := m.registry.Find(ctx, p.blType, value)
		if err != nil {
			errs = append(errs, fmt.Errorf("blacklist lookup %s: %w", p.blType, err))
			continue
		}
		if entry == nil {
			continue
		}
		if entry.Expired(now) {
			id := entry.ID
			result.onCommit(func(ctx context.Context) error {
				return m.registry.Deactivate(ctx, id)
			})
			continue
		}

		result.Factors = append(result.Factors, FraudFactor{
			Kind:        p.kind,
			Description: fmt.Sprintf("%s is blacklisted: %s", p.blType, entry.Reason),
			Weight:      p.score,
			Value:       entry.ID,
		})
		if p.score > result.Score {
			result.Score = p.score
		}
	}

	result.IsRisky = result.Score > 0
	return result, errors.Join(errs...)
}
