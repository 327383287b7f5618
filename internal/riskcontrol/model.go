package riskcontrol

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// RiskLevel 风险等级
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// 风险等级阈值，分数达到即归入该等级
const (
	MediumThreshold   = 30.0
	HighThreshold     = 60.0
	CriticalThreshold = 80.0
)

// ClassifyRiskLevel 按阈值表划分风险等级
func ClassifyRiskLevel(score float64) RiskLevel {
	switch {
	case score >= CriticalThreshold:
		return RiskLevelCritical
	case score >= HighThreshold:
		return RiskLevelHigh
	case score >= MediumThreshold:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// AlertSeverity 告警级别
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// Notifiable 高危及以上需要外部通知
func (s AlertSeverity) Notifiable() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// AlertType 告警类型
type AlertType string

const (
	AlertTypeVelocity        AlertType = "velocity"
	AlertTypePaymentAnomaly  AlertType = "payment_anomaly"
	AlertTypeLocationAnomaly AlertType = "location_anomaly"
	AlertTypeDeviceAnomaly   AlertType = "device_anomaly"
	AlertTypeBlacklistMatch  AlertType = "blacklist_match"
	AlertTypeAccountTakeover AlertType = "account_takeover"

	// 以下类型暂无检测器产生，保留给后续规则
	AlertTypeSuspiciousPattern AlertType = "suspicious_pattern"
	AlertTypeCardTesting       AlertType = "card_testing"
	AlertTypeHighRiskOrder     AlertType = "high_risk_order"
	AlertTypeChargebackRisk    AlertType = "chargeback_risk"
)

// AlertStatus 告警处理状态
type AlertStatus string

const (
	AlertStatusPending       AlertStatus = "pending"
	AlertStatusInvestigating AlertStatus = "investigating"
	AlertStatusResolved      AlertStatus = "resolved"
	AlertStatusFalsePositive AlertStatus = "false_positive"
)

// Valid 是否为已知状态
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusPending, AlertStatusInvestigating, AlertStatusResolved, AlertStatusFalsePositive:
		return true
	}
	return false
}

// Terminal 终态不可再流转
func (s AlertStatus) Terminal() bool {
	return s == AlertStatusResolved || s == AlertStatusFalsePositive
}

// BlacklistType 黑名单类型
type BlacklistType string

const (
	BlacklistEmail  BlacklistType = "email"
	BlacklistIP     BlacklistType = "ip"
	BlacklistDevice BlacklistType = "device"
	BlacklistCard   BlacklistType = "card"
	BlacklistPhone  BlacklistType = "phone"
)

// Valid 是否为已知类型
func (t BlacklistType) Valid() bool {
	switch t {
	case BlacklistEmail, BlacklistIP, BlacklistDevice, BlacklistCard, BlacklistPhone:
		return true
	}
	return false
}

// FraudFactor 单个风险因子
type FraudFactor struct {
	Kind        string      `json:"kind"`
	Description string      `json:"description"`
	Weight      int         `json:"weight"`
	Value       interface{} `json:"value,omitempty"`
}

// Subscores 分类子分数
type Subscores struct {
	Velocity int `json:"velocity"`
	Location int `json:"location"`
	Device   int `json:"device"`
	Behavior int `json:"behavior"`
	Payment  int `json:"payment"`
}

// RiskProfile 客户风险画像
type RiskProfile struct {
	ID                      uint            `gorm:"primaryKey" json:"-"`
	CustomerID              string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"customer_id"`
	RiskScore               float64         `gorm:"default:0" json:"risk_score"`
	RiskLevel               RiskLevel       `gorm:"type:varchar(20);default:'low'" json:"risk_level"`
	Subscores               Subscores       `gorm:"embedded;embeddedPrefix:subscore_" json:"subscores"`
	LastUpdated             time.Time       `json:"last_updated"`
	OrderCount              int64           `gorm:"default:0" json:"order_count"`
	TotalSpent              decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_spent"`
	AverageOrderValue       decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"average_order_value"`
	SuspiciousActivityCount int64           `gorm:"default:0" json:"suspicious_activity_count"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// DeviceFingerprint 设备指纹
type DeviceFingerprint struct {
	ID              string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	OwnerCustomerID string    `gorm:"type:varchar(100);index;not null" json:"owner_customer_id"`
	RawFingerprint  string    `gorm:"type:text" json:"raw_fingerprint"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	TrustScore      int       `gorm:"default:50" json:"trust_score"`
	IsBlacklisted   bool      `gorm:"default:false" json:"is_blacklisted"`
}

// BlacklistEntry 黑名单条目
type BlacklistEntry struct {
	ID        string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	Type      BlacklistType `gorm:"type:varchar(20);not null;index:idx_blacklist_lookup" json:"type"`
	Value     string        `gorm:"type:varchar(255);not null;index:idx_blacklist_lookup" json:"value"`
	Reason    string        `gorm:"type:text" json:"reason"`
	Severity  AlertSeverity `gorm:"type:varchar(20);default:'high'" json:"severity"`
	AddedBy   string        `gorm:"type:varchar(100)" json:"added_by"`
	AddedAt   time.Time     `json:"added_at"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	IsActive  bool          `gorm:"default:true;index" json:"is_active"`
}

// Expired 是否在 now 时已过期
func (e *BlacklistEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// FraudAlert 欺诈告警
type FraudAlert struct {
	ID          string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	CustomerID  string         `gorm:"type:varchar(100);index;not null" json:"customer_id"`
	OrderID     string         `gorm:"type:varchar(100);index" json:"order_id,omitempty"`
	Type        AlertType      `gorm:"type:varchar(50);index;not null" json:"type"`
	Severity    AlertSeverity  `gorm:"type:varchar(20);index;not null" json:"severity"`
	Score       int            `json:"score"`
	Factors     []FraudFactor  `gorm:"serializer:json;type:jsonb" json:"factors"`
	FactorKinds pq.StringArray `gorm:"type:text[]" json:"-"`
	Status      AlertStatus    `gorm:"type:varchar(20);index;default:'pending'" json:"status"`
	Description string         `gorm:"type:text" json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ReviewedBy  string         `gorm:"type:varchar(100)" json:"reviewed_by,omitempty"`
	Resolution  string         `gorm:"type:text" json:"resolution,omitempty"`
}

// TableName 表名
func (RiskProfile) TableName() string {
	return "risk_profiles"
}

func (DeviceFingerprint) TableName() string {
	return "device_fingerprints"
}

func (BlacklistEntry) TableName() string {
	return "blacklist_entries"
}

func (FraudAlert) TableName() string {
	return "fraud_alerts"
}

// AnalysisResult 订单风险分析结果
type AnalysisResult struct {
	OrderID         string        `json:"order_id,omitempty"`
	CustomerID      string        `json:"customer_id"`
	RiskScore       float64       `json:"risk_score"`
	RiskLevel       RiskLevel     `json:"risk_level"`
	Alerts          []*FraudAlert `json:"alerts"`
	ShouldBlock     bool          `json:"should_block"`
	Recommendations []string      `json:"recommendations"`
	Factors         []FraudFactor `json:"factors"`
	Partial         bool          `json:"partial"`
	AnalyzedAt      time.Time     `json:"analyzed_at"`
}
