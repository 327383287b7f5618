package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadRiskPolicy 从策略文件（yaml/json/toml）覆盖风控名单与阈值
//
// 文件示例:
//
//	high_risk_countries: [NG, KP]
//	prepaid_bins: ["411111"]
//	high_risk_bins: ["400000"]
//	bin_countries: {"520000": GB}
//	large_amount_threshold: "5000"
//	block_threshold: 95
func LoadRiskPolicy(path string, cfg *RiskConfig) error {
	if path == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read risk policy: %w", err)
	}

	if v.IsSet("high_risk_countries") {
		cfg.HighRiskCountries = upperAll(v.GetStringSlice("high_risk_countries"))
	}
	if v.IsSet("prepaid_bins") {
		cfg.PrepaidBINs = v.GetStringSlice("prepaid_bins")
	}
	if v.IsSet("high_risk_bins") {
		cfg.HighRiskBINs = v.GetStringSlice("high_risk_bins")
	}
	if v.IsSet("bin_countries") {
		countries := make(map[string]string)
		for bin, country := range v.GetStringMapString("bin_countries") {
			countries[bin] = strings.ToUpper(strings.TrimSpace(country))
		}
		cfg.BINCountries = countries
	}
	if v.IsSet("large_amount_threshold") {
		cfg.LargeAmountThreshold = v.GetString("large_amount_threshold")
	}
	if v.IsSet("block_threshold") {
		cfg.BlockThreshold = v.GetFloat64("block_threshold")
	}
	if v.IsSet("velocity_window") {
		cfg.VelocityWindow = v.GetDuration("velocity_window")
	}
	if v.IsSet("default_phone_region") {
		cfg.DefaultPhoneRegion = v.GetString("default_phone_region")
	}
	return nil
}

func upperAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToUpper(strings.TrimSpace(v)))
	}
	return out
}
