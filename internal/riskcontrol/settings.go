package riskcontrol

import (
	"fmt"

	"fraud-risk-engine/pkg/config"

	"github.com/shopspring/decimal"
)

// ConfigFromSettings 由应用配置生成引擎配置
func ConfigFromSettings(rc config.RiskConfig) (Config, error) {
	cfg := DefaultConfig()

	if rc.LargeAmountThreshold != "" {
		threshold, err := decimal.NewFromString(rc.LargeAmountThreshold)
		if err != nil {
			return Config{}, fmt.Errorf("invalid large amount threshold %q: %w", rc.LargeAmountThreshold, err)
		}
		cfg.LargeAmountThreshold = threshold
	}
	if rc.VelocityWindow > 0 {
		cfg.VelocityWindow = rc.VelocityWindow
	}
	if rc.BlockThreshold > 0 {
		cfg.BlockThreshold = rc.BlockThreshold
	}
	if rc.AnalysisTimeout > 0 {
		cfg.AnalysisTimeout = rc.AnalysisTimeout
	}
	if rc.WriteTimeout > 0 {
		cfg.WriteTimeout = rc.WriteTimeout
	}
	if rc.DefaultPhoneRegion != "" {
		cfg.PhoneRegion = rc.DefaultPhoneRegion
	}
	cfg.HighRiskCountries = rc.HighRiskCountries
	cfg.BlacklistShortCircuit = rc.BlacklistShortCircuit
	return cfg, nil
}

// BINLookupFromSettings 由配置的前缀表生成 BIN 查询
func BINLookupFromSettings(rc config.RiskConfig) BINLookup {
	return NewStaticBINLookup(rc.PrepaidBINs, rc.HighRiskBINs, rc.BINCountries)
}
