package routers

import (
	"context"
	"net/http"
	"time"

	"fraud-risk-engine/internal/audit"
	"fraud-risk-engine/internal/order"
	"fraud-risk-engine/internal/riskcontrol"
	"fraud-risk-engine/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Services 服务集合
type Services struct {
	Risk   riskcontrol.Service
	Orders order.Service
	Audit  audit.Service
}

// Options 路由选项
type Options struct {
	APIKey       string
	RateLimitRPS int
	// Ready 健康检查依赖探测，为 nil 时只报告进程存活
	Ready func(ctx context.Context) error
}

// SetupRouter 设置路由
func SetupRouter(svc *Services, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(LoggerMiddleware())
	router.Use(RecoveryMiddleware())
	router.Use(CORSMiddleware())
	router.Use(metrics.Middleware())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		if opts.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := opts.Ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unavailable",
					"error":  err.Error(),
					"time":   time.Now().Format(time.RFC3339),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", metrics.Handler())

	// API v1
	apiV1 := router.Group("/api/v1")
	{
		riskHandler := NewRiskHandler(svc.Risk)

		// 商户调用
		merchant := apiV1.Group("")
		merchant.Use(APIKeyMiddleware(opts.APIKey))
		{
			scoring := merchant.Group("")
			scoring.Use(RateLimitMiddleware(opts.RateLimitRPS))
			riskHandler.RegisterScoring(scoring)

			if svc.Orders != nil {
				NewOrderHandler(svc.Orders).Register(merchant)
			}
		}

		// 管理端
		protected := apiV1.Group("")
		protected.Use(AuthMiddleware())
		{
			riskHandler.RegisterAdmin(protected)

			if svc.Audit != nil {
				NewAuditHandler(svc.Audit).Register(protected)
			}
		}
	}

	return router
}
