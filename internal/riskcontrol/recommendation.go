package riskcontrol

// 建议文案
const (
	RecommendationPartial  = "Manual review required - partial analysis"
	RecommendationCritical = "Block order and escalate to the fraud team"
	RecommendationHigh     = "Hold order for manual review before fulfillment"
	RecommendationMedium   = "Request additional verification from the customer"
	RecommendationLow      = "Proceed with standard processing"
)

var categoryRecommendations = []struct {
	detector string
	text     string
}{
	{DetectorBlacklist, "Customer identifier matches the blacklist - reject and review account"},
	{DetectorVelocity, "Implement velocity limits for this customer"},
	{DetectorPayment, "Verify the payment instrument with the issuer or require 3-D Secure"},
	{DetectorAddress, "Verify the shipping address with the customer"},
	{DetectorDevice, "Require step-up authentication for this device"},
	{DetectorBehavior, "Review the customer's history of suspicious orders"},
}

// buildRecommendations 分数档位建议 + 每个出现因子的类别建议
func buildRecommendations(score float64, results []*DetectorResult) []string {
	recs := make([]string, 0, 4)
	switch ClassifyRiskLevel(score) {
	case RiskLevelCritical:
		recs = append(recs, RecommendationCritical)
	case RiskLevelHigh:
		recs = append(recs, RecommendationHigh)
	case RiskLevelMedium:
		recs = append(recs, RecommendationMedium)
	default:
		recs = append(recs, RecommendationLow)
	}

	fired := make(map[string]bool, len(results))
	for _, r := range results {
		if len(r.Factors) > 0 {
			fired[r.Detector] = true
		}
	}
	for _, c := range categoryRecommendations {
		if fired[c.detector] {
			recs = append(recs, c.text)
		}
	}
	return recs
}
