package riskcontrol

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Address 地址
type Address struct {
	Line1      string `json:"line1,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

// OrderContext 待分析订单
type OrderContext struct {
	CustomerID        string          `json:"customer_id"`
	OrderID           string          `json:"order_id"`
	CustomerEmail     string          `json:"customer_email"`
	CustomerPhone     string          `json:"customer_phone,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency,omitempty"`
	PaymentMethod     string          `json:"payment_method"`
	CardBIN           string          `json:"card_bin,omitempty"`
	ShippingAddress   *Address        `json:"shipping_address,omitempty"`
	BillingAddress    *Address        `json:"billing_address,omitempty"`
	DeviceFingerprint string          `json:"device_fingerprint,omitempty"`
	IPAddress         string          `json:"ip_address,omitempty"`
	UserAgent         string          `json:"user_agent,omitempty"`
}

// Validate 入口参数校验；引擎本身不拒绝任何订单
func (o *OrderContext) Validate() error {
	if o == nil {
		return fmt.Errorf("%w: empty order", ErrInvalidOrder)
	}
	if strings.TrimSpace(o.CustomerID) == "" {
		return fmt.Errorf("%w: customer_id is required", ErrInvalidOrder)
	}
	if o.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidOrder)
	}
	return nil
}

// OrderSummary 历史订单摘要，由宿主提供
type OrderSummary struct {
	OrderID   string          `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}
