package riskcontrol

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const (
	paymentRiskyAbove    = 30
	weightCreditCard     = 10
	weightPrepaidCard    = 25
	weightHighRiskBIN    = 30
	weightBINCountryDiff = 20
)

// BINInfo 发卡行信息
type BINInfo struct {
	BIN      string `json:"bin"`
	Prepaid  bool   `json:"prepaid"`
	HighRisk bool   `json:"high_risk"`
	Country  string `json:"country,omitempty"`
}

// BINLookup 卡 BIN 查询
type BINLookup interface {
	Lookup(ctx context.Context, bin string) (*BINInfo, error)
}

// StaticBINLookup 基于前缀表的 BIN 查询
type StaticBINLookup struct {
	prepaid   []string
	highRisk  []string
	countries map[string]string
	prefixes  []string // countries 的键，按长度降序
}

// NewStaticBINLookup 创建前缀表 BIN 查询
func NewStaticBINLookup(prepaid, highRisk []string, countries map[string]string) *StaticBINLookup {
	l := &StaticBINLookup{prepaid: prepaid, highRisk: highRisk, countries: countries}
	for prefix := range countries {
		l.prefixes = append(l.prefixes, prefix)
	}
	sort.Slice(l.prefixes, func(i, j int) bool {
		if len(l.prefixes[i]) != len(l.prefixes[j]) {
			return len(l.prefixes[i]) > len(l.prefixes[j])
		}
		return l.prefixes[i] < l.prefixes[j]
	})
	return l
}

// Lookup 前缀匹配
func (l *StaticBINLookup) Lookup(_ context.Context, bin string) (*BINInfo, error) {
	info := &BINInfo{
		BIN:      bin,
		Prepaid:  hasPrefix(bin, l.prepaid),
		HighRisk: hasPrefix(bin, l.highRisk),
	}
	for _, prefix := range l.prefixes {
		if strings.HasPrefix(bin, prefix) {
			info.Country = l.countries[prefix]
			break
		}
	}
	return info, nil
}

func hasPrefix(bin string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(bin, p) {
			return true
		}
	}
	return false
}

// PaymentAnomalyDetector 支付方式异常检测
type PaymentAnomalyDetector struct {
	bins BINLookup
}

// NewPaymentAnomalyDetector 创建支付检测器，bins 可为 nil
func NewPaymentAnomalyDetector(bins BINLookup) *PaymentAnomalyDetector {
	return &PaymentAnomalyDetector{bins: bins}
}

func (d *PaymentAnomalyDetector) Name() string { return DetectorPayment }

func isCardPayment(method string) bool {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "credit_card", "card":
		return true
	}
	return false
}

// Detect BIN 查询失败只丢弃 BIN 相关因子
func (d *PaymentAnomalyDetector) Detect(ctx context.Context, order *OrderContext) (*DetectorResult, error) {
	result := newResult(DetectorPayment)

	if isCardPayment(order.PaymentMethod) {
		result.add(FraudFactor{
			Kind:        "credit_card_payment",
			Description: "card-not-present credit card payment",
			Weight:      weightCreditCard,
			Value:       order.PaymentMethod,
		})
	}

	var lookupErr error
	if bin := strings.TrimSpace(order.CardBIN); bin != "" && d.bins != nil {
		info, err := d.bins.Lookup(ctx, bin)
		if err != nil {
			lookupErr = fmt.Errorf("bin lookup: %w", err)
		} else if info != nil {
			d.binFactors(result, order, info)
		}
	}

	result.IsRisky = result.Score > paymentRiskyAbove
	return result, lookupErr
}

func (d *PaymentAnomalyDetector) binFactors(result *DetectorResult, order *OrderContext, info *BINInfo) {
	if info.Prepaid {
		result.add(FraudFactor{
			Kind:        "prepaid_card",
			Description: "prepaid card BIN",
			Weight:      weightPrepaidCard,
			Value:       info.BIN,
		})
	}
	if info.HighRisk {
		result.add(FraudFactor{
			Kind:        "high_risk_bin",
			Description: "card BIN is on the high-risk list",
			Weight:      weightHighRiskBIN,
			Value:       info.BIN,
		})
	}
	if info.Country != "" && order.BillingAddress != nil {
		billing := normalizeCountry(order.BillingAddress.Country)
		if billing != "" && billing != normalizeCountry(info.Country) {
			result.add(FraudFactor{
				Kind:        "bin_country_mismatch",
				Description: fmt.Sprintf("card issued in %s, billing country %s", normalizeCountry(info.Country), billing),
				Weight:      weightBINCountryDiff,
				Value:       map[string]string{"issuer": normalizeCountry(info.Country), "billing": billing},
			})
		}
	}
}
