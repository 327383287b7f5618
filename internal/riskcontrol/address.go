package riskcontrol

import (
	"context"
	"fmt"
	"strings"
)

const (
	addressRiskyAbove     = 30
	weightCountryMismatch = 40
	weightStateMismatch   = 20
	weightHighRiskCountry = 50
)

func normalizeCountry(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

// AddressMismatchDetector 收货地址与账单地址一致性检测
type AddressMismatchDetector struct {
	highRisk map[string]struct{}
}

// NewAddressMismatchDetector 创建地址检测器
func NewAddressMismatchDetector(highRiskCountries []string) *AddressMismatchDetector {
	set := make(map[string]struct{}, len(highRiskCountries))
	for _, c := range highRiskCountries {
		if c = normalizeCountry(c); c != "" {
			set[c] = struct{}{}
		}
	}
	return &AddressMismatchDetector{highRisk: set}
}

func (d *AddressMismatchDetector) Name() string { return DetectorAddress }

// Detect 任一地址缺失时不评分
func (d *AddressMismatchDetector) Detect(_ context.Context, order *OrderContext) (*DetectorResult, error) {
	result := newResult(DetectorAddress)
	ship, bill := order.ShippingAddress, order.BillingAddress
	if ship == nil || bill == nil {
		return result, nil
	}

	shipCountry, billCountry := normalizeCountry(ship.Country), normalizeCountry(bill.Country)
	if shipCountry != billCountry {
		result.add(FraudFactor{
			Kind:        "country_mismatch",
			Description: fmt.Sprintf("shipping country %s differs from billing country %s", shipCountry, billCountry),
			Weight:      weightCountryMismatch,
			Value:       map[string]string{"shipping": shipCountry, "billing": billCountry},
		})
	} else if !strings.EqualFold(strings.TrimSpace(ship.State), strings.TrimSpace(bill.State)) {
		result.add(FraudFactor{
			Kind:        "state_mismatch",
			Description: "shipping and billing state differ",
			Weight:      weightStateMismatch,
			Value:       map[string]string{"shipping": ship.State, "billing": bill.State},
		})
	}

	if _, ok := d.highRisk[shipCountry]; ok {
		result.add(FraudFactor{
			Kind:        "high_risk_country",
			Description: fmt.Sprintf("shipping to high-risk country %s", shipCountry),
			Weight:      weightHighRiskCountry,
			Value:       shipCountry,
		})
	}

	result.IsRisky = result.Score > addressRiskyAbove
	return result, nil
}
