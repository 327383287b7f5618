package order

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order 订单记录，作为风控频率检测的数据源
type Order struct {
	ID            uint            `gorm:"primaryKey" json:"-"`
	OrderID       string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"order_id"`
	CustomerID    string          `gorm:"type:varchar(100);index:idx_orders_customer_created;not null" json:"customer_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency      string          `gorm:"type:varchar(10)" json:"currency"`
	PaymentMethod string          `gorm:"type:varchar(50)" json:"payment_method"`
	Status        Status          `gorm:"type:varchar(20);default:'placed';index" json:"status"`
	CreatedAt     time.Time       `gorm:"index:idx_orders_customer_created" json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}

// Status 订单状态
type Status string

const (
	StatusPlaced    Status = "placed"    // 已下单
	StatusAccepted  Status = "accepted"  // 风控通过
	StatusBlocked   Status = "blocked"   // 风控拦截
	StatusCancelled Status = "cancelled" // 已取消
)

// Valid 是否为已知状态
func (s Status) Valid() bool {
	switch s {
	case StatusPlaced, StatusAccepted, StatusBlocked, StatusCancelled:
		return true
	}
	return false
}

// TableName 表名
func (Order) TableName() string {
	return "orders"
}
