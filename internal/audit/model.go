package audit

import (
	"time"
)

// AuditLog 审计日志
type AuditLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Module      string    `gorm:"type:varchar(50);index;not null" json:"module"`
	Action      string    `gorm:"type:varchar(50);index;not null" json:"action"`
	CustomerID  string    `gorm:"type:varchar(100);index" json:"customer_id,omitempty"`
	ResourceID  string    `gorm:"type:varchar(100)" json:"resource_id,omitempty"`
	Operator    string    `gorm:"type:varchar(100)" json:"operator,omitempty"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Payload     string    `gorm:"type:text" json:"payload"`
	Status      int       `gorm:"default:1" json:"status"` // 1=success, 0=failed
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// Module 模块常量
const (
	ModuleRisk   = "risk"
	ModuleOrder  = "order"
	ModuleAdmin  = "admin"
	ModuleSystem = "system"
)

// 以下事件视为失败状态
var failedActions = map[string]bool{
	"analysis_timeout":       true,
	"detector_commit_failed": true,
	"alert_persist_failed":   true,
	"profile_update_failed":  true,
}

// TableName 表名
func (AuditLog) TableName() string {
	return "audit_logs"
}
