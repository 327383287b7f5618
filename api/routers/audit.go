package routers

import (
	"strconv"
	"time"

	"fraud-risk-engine/internal/audit"
	"fraud-risk-engine/pkg/httputil"

	"github.com/gin-gonic/gin"
)

// AuditHandler 审计日志处理器
type AuditHandler struct {
	service audit.Service
}

// NewAuditHandler 创建审计日志处理器
func NewAuditHandler(service audit.Service) *AuditHandler {
	return &AuditHandler{service: service}
}

// Register 注册路由
func (h *AuditHandler) Register(r *gin.RouterGroup) {
	r.GET("/admin/audit-logs", h.ListLogs)
}

// ListLogs 查询审计日志
func (h *AuditHandler) ListLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := &audit.ListFilter{
		Module:     c.Query("module"),
		Action:     c.Query("action"),
		CustomerID: c.Query("customer_id"),
		Page:       page,
		PageSize:   pageSize,
	}
	for key, dst := range map[string]**time.Time{"start": &filter.StartTime, "end": &filter.EndTime} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.BadRequest(c, "invalid "+key+" time, expected RFC3339")
			return
		}
		*dst = &t
	}

	logs, total, err := h.service.ListLogs(c.Request.Context(), filter)
	if err != nil {
		httputil.InternalError(c, err.Error())
		return
	}
	httputil.SuccessWithPage(c, total, filter.Page, filter.PageSize, logs)
}
