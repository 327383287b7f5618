package routers

import (
	"errors"
	"strconv"

	"fraud-risk-engine/internal/riskcontrol"
	"fraud-risk-engine/pkg/httputil"

	"github.com/gin-gonic/gin"
)

// RiskHandler 风控处理器
type RiskHandler struct {
	service riskcontrol.Service
}

// NewRiskHandler 创建风控处理器
func NewRiskHandler(service riskcontrol.Service) *RiskHandler {
	return &RiskHandler{service: service}
}

// RegisterScoring 注册商户调用的评分路由
func (h *RiskHandler) RegisterScoring(r *gin.RouterGroup) {
	r.POST("/risk/analyze", h.AnalyzeOrder)
}

// RegisterAdmin 注册管理端路由
func (h *RiskHandler) RegisterAdmin(r *gin.RouterGroup) {
	r.GET("/risk/profiles/:customer_id", h.GetRiskProfile)

	admin := r.Group("/admin")
	admin.POST("/blacklist", h.AddToBlacklist)
	admin.GET("/blacklist", h.ListBlacklist)
	admin.DELETE("/blacklist/:id", h.RemoveFromBlacklist)
	admin.GET("/alerts", h.ListAlerts)
	admin.GET("/alerts/:id", h.GetAlert)
	admin.PUT("/alerts/:id/status", h.UpdateAlertStatus)
}

// AnalyzeOrder 订单风险分析
// @Summary 订单风险分析
// @Tags Risk
// @Accept json
// @Produce json
// @Param request body riskcontrol.OrderContext true "订单信息"
// @Success 200 {object} httputil.Response
// @Router /api/v1/risk/analyze [post]
func (h *RiskHandler) AnalyzeOrder(c *gin.Context) {
	var req riskcontrol.OrderContext
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.AnalyzeOrder(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, riskcontrol.ErrInvalidOrder) {
			httputil.BadRequest(c, err.Error())
			return
		}
		httputil.InternalError(c, err.Error())
		return
	}

	httputil.Success(c, result)
}

// GetRiskProfile 获取客户风险画像
func (h *RiskHandler) GetRiskProfile(c *gin.Context) {
	profile, err := h.service.GetRiskProfile(c.Request.Context(), c.Param("customer_id"))
	if err != nil {
		httputil.InternalError(c, err.Error())
		return
	}
	if profile == nil {
		httputil.NotFound(c, "risk profile not found")
		return
	}
	httputil.Success(c, profile)
}

// AddToBlacklist 添加黑名单
func (h *RiskHandler) AddToBlacklist(c *gin.Context) {
	var req riskcontrol.BlacklistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}
	req.AddedBy = GetOperator(c)

	entry, err := h.service.AddToBlacklist(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, riskcontrol.ErrInvalidBlacklistType) || errors.Is(err, riskcontrol.ErrInvalidBlacklistValue) {
			httputil.Error(c, httputil.ErrCodeBlacklistInvalid, err.Error())
			return
		}
		httputil.InternalError(c, err.Error())
		return
	}
	httputil.Success(c, entry)
}

// ListBlacklist 列出黑名单
func (h *RiskHandler) ListBlacklist(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := riskcontrol.BlacklistFilter{
		Type:       riskcontrol.BlacklistType(c.Query("type")),
		ActiveOnly: c.Query("active") == "true",
		Page:       page,
		PageSize:   pageSize,
	}
	entries, total, err := h.service.ListBlacklist(c.Request.Context(), filter)
	if err != nil {
		if errors.Is(err, riskcontrol.ErrInvalidBlacklistType) {
			httputil.BadRequest(c, err.Error())
			return
		}
		httputil.InternalError(c, err.Error())
		return
	}
	httputil.SuccessWithPage(c, total, page, pageSize, entries)
}

// RemoveFromBlacklist 移除黑名单
func (h *RiskHandler) RemoveFromBlacklist(c *gin.Context) {
	if err := h.service.RemoveFromBlacklist(c.Request.Context(), c.Param("id"), GetOperator(c)); err != nil {
		if errors.Is(err, riskcontrol.ErrBlacklistNotFound) {
			httputil.NotFound(c, err.Error())
			return
		}
		httputil.InternalError(c, err.Error())
		return
	}
	httputil.SuccessWithMessage(c, "removed", nil)
}

// ListAlerts 列出告警
func (h *RiskHandler) ListAlerts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := riskcontrol.AlertFilter{
		CustomerID: c.Query("customer_id"),
		Type:       riskcontrol.AlertType(c.Query("type")),
		Severity:   riskcontrol.AlertSeverity(c.Query("severity")),
		Status:     riskcontrol.AlertStatus(c.Query("status")),
		FactorKind: c.Query("factor"),
		Page:       page,
		PageSize:   pageSize,
	}
	alerts, total, err := h.service.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		httputil.InternalError(c, err.Error())
		return
	}
	httputil.SuccessWithPage(c, total, page, pageSize, alerts)
}

// GetAlert 获取告警
func (h *RiskHandler) GetAlert(c *gin.Context) {
	alert, err := h.service.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, riskcontrol.ErrAlertNotFound) {
			httputil.NotFound(c, err.Error())
			return
		}
		httputil.InternalError(c, err.Error())
		return
	}
	httputil.Success(c, alert)
}

// UpdateAlertStatus 审核告警
func (h *RiskHandler) UpdateAlertStatus(c *gin.Context) {
	var req riskcontrol.AlertStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}
	req.ReviewedBy = GetOperator(c)

	alert, err := h.service.UpdateAlertStatus(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		switch {
		case errors.Is(err, riskcontrol.ErrAlertNotFound):
			httputil.NotFound(c, err.Error())
		case errors.Is(err, riskcontrol.ErrAlertClosed):
			httputil.Error(c, httputil.ErrCodeAlertClosed, err.Error())
		case errors.Is(err, riskcontrol.ErrInvalidAlertStatus):
			httputil.Error(c, httputil.ErrCodeInvalidAlertStatus, err.Error())
		default:
			httputil.InternalError(c, err.Error())
		}
		return
	}
	httputil.Success(c, alert)
}
