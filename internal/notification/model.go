package notification

import (
	"time"
)

// Notification 告警通知记录
type Notification struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	AlertID    string           `gorm:"type:varchar(36);index;not null" json:"alert_id"`
	Type       NotificationType `gorm:"type:varchar(50);not null" json:"type"`
	Channel    Channel          `gorm:"type:varchar(20);not null" json:"channel"`
	Target     string           `gorm:"type:varchar(500);not null" json:"target"` // webhook URL 或邮箱
	Title      string           `gorm:"type:varchar(200)" json:"title"`
	Content    string           `gorm:"type:text;not null" json:"content"`
	Data       string           `gorm:"type:text" json:"data"`         // webhook 请求体
	Status     Status           `gorm:"default:0;index" json:"status"` // 0=pending, 1=sent, 2=failed
	SendAt     *time.Time       `json:"send_at"`
	ErrorMsg   string           `gorm:"type:text" json:"error_msg"`
	RetryCount int              `gorm:"default:0" json:"retry_count"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// NotificationType 通知类型
type NotificationType string

const (
	NotificationTypeFraudAlert NotificationType = "fraud_alert"
)

// Channel 通知渠道
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelWebhook Channel = "webhook"
)

// Status 投递状态
type Status int

const (
	StatusPending Status = 0
	StatusSent    Status = 1
	StatusFailed  Status = 2
)

// MaxRetries 最大投递次数
const MaxRetries = 3

// TableName 表名
func (Notification) TableName() string {
	return "notifications"
}
