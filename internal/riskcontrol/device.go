package riskcontrol

import (
	"context"
	"fmt"
	"strings"
)

const (
	deviceRiskyAbove     = 40
	weightNewDevice      = 20
	weightDeviceSharing  = 60
	weightLowTrustDevice = 40

	neutralTrustScore   = 50
	sharingTrustPenalty = 10
)

// DeviceFingerprintAnalyzer 设备指纹分析
//
// 会修改 DeviceTrustRegistry：新设备登记、已知设备刷新 LastSeen。
// 写操作挂在结果上，DetectorResult.Commit 后生效。
type DeviceFingerprintAnalyzer struct {
	registry DeviceTrustRegistry
	clock    clock
}

// NewDeviceFingerprintAnalyzer 创建设备分析器
func NewDeviceFingerprintAnalyzer(registry DeviceTrustRegistry) *DeviceFingerprintAnalyzer {
	return &DeviceFingerprintAnalyzer{registry: registry}
}

func (d *DeviceFingerprintAnalyzer) Name() string { return DetectorDevice }

// Detect 分析设备指纹
func (d *DeviceFingerprintAnalyzer) Detect(ctx context.Context, order *OrderContext) (*DetectorResult, error) {
	result := newResult(DetectorDevice)
	raw := strings.TrimSpace(order.DeviceFingerprint)
	if raw == "" || d.registry == nil {
		return result, nil
	}

	id := DeviceID(raw)
	device, err := d.registry.Get(ctx, id)
	if err != nil {
		return result, fmt.Errorf("device registry lookup: %w", err)
	}

	now := d.clock.now()
	if device == nil {
		fresh := &DeviceFingerprint{
			ID:              id,
			OwnerCustomerID: order.CustomerID,
			RawFingerprint:  raw,
			FirstSeen:       now,
			LastSeen:        now,
			TrustScore:      neutralTrustScore,
		}
		result.add(FraudFactor{
			Kind:        "new_device",
			Description: "first order from this device",
			Weight:      weightNewDevice,
			Value:       id,
		})
		result.onCommit(func(ctx context.Context) error {
			return d.registry.Put(ctx, fresh)
		})
		result.IsRisky = result.Score > deviceRiskyAbove
		return result, nil
	}

	updated := *device
	updated.LastSeen = now

	if device.OwnerCustomerID != order.CustomerID {
		result.add(FraudFactor{
			Kind:        "device_sharing",
			Description: "device is registered to another customer",
			Weight:      weightDeviceSharing,
			Value:       id,
		})
		updated.TrustScore -= sharingTrustPenalty
		if updated.TrustScore < 0 {
			updated.TrustScore = 0
		}
	}
	if device.TrustScore < neutralTrustScore {
		result.add(FraudFactor{
			Kind:        "low_trust_device",
			Description: fmt.Sprintf("device trust score %d below %d", device.TrustScore, neutralTrustScore),
			Weight:      weightLowTrustDevice,
			Value:       device.TrustScore,
		})
	}

	result.onCommit(func(ctx context.Context) error {
		return d.registry.Put(ctx, &updated)
	})
	result.IsRisky = result.Score > deviceRiskyAbove
	return result, nil
}
