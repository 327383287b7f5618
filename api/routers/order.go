package routers

import (
	"errors"
	"strconv"

	"fraud-risk-engine/internal/order"
	"fraud-risk-engine/pkg/httputil"

	"github.com/gin-gonic/gin"
)

// OrderHandler 订单处理器
type OrderHandler struct {
	service order.Service
}

// NewOrderHandler 创建订单处理器
func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{service: service}
}

// Register 注册路由
func (h *OrderHandler) Register(r *gin.RouterGroup) {
	r.POST("/orders", h.RecordOrder)
	r.GET("/orders/:order_id", h.GetOrder)
	r.GET("/customers/:customer_id/orders", h.ListOrders)
}

// RecordOrder 记录订单
func (h *OrderHandler) RecordOrder(c *gin.Context) {
	var req order.RecordOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	o, err := h.service.RecordOrder(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrInvalidOrder):
			httputil.BadRequest(c, err.Error())
		case errors.Is(err, order.ErrDuplicate):
			httputil.Error(c, httputil.ErrCodeOrderExists, err.Error())
		default:
			httputil.InternalError(c, err.Error())
		}
		return
	}
	httputil.Success(c, o)
}

// GetOrder 获取订单
func (h *OrderHandler) GetOrder(c *gin.Context) {
	o, err := h.service.GetOrder(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			httputil.NotFound(c, err.Error())
			return
		}
		httputil.InternalError(c, err.Error())
		return
	}
	httputil.Success(c, o)
}

// ListOrders 列出客户订单
func (h *OrderHandler) ListOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	orders, total, err := h.service.ListOrders(c.Request.Context(), c.Param("customer_id"), page, pageSize)
	if err != nil {
		httputil.InternalError(c, err.Error())
		return
	}
	httputil.SuccessWithPage(c, total, page, pageSize, orders)
}
