package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpcserver "fraud-risk-engine/api/grpc"
	"fraud-risk-engine/api/routers"
	"fraud-risk-engine/internal/audit"
	"fraud-risk-engine/internal/notification"
	"fraud-risk-engine/internal/order"
	"fraud-risk-engine/internal/riskcontrol"
	"fraud-risk-engine/pkg/cache"
	"fraud-risk-engine/pkg/config"
	"fraud-risk-engine/pkg/database"
	"fraud-risk-engine/pkg/logger"
	"fraud-risk-engine/pkg/traces"

	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化日志
	logger.Init(cfg.App.Env, cfg.App.LogLevel)
	defer logger.Sync()

	if err := config.LoadRiskPolicy(cfg.Risk.PolicyFile, &cfg.Risk); err != nil {
		logger.Fatalf("Failed to load risk policy: %v", err)
	}

	logger.Infof("Starting %s v%s (storage=%s)", cfg.App.Name, cfg.App.Version, cfg.Risk.StorageDriver)

	shutdownTracing, err := traces.Init(context.Background(), cfg.Observability.OTLPEndpoint, cfg.App.Version)
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}

	// 初始化服务
	services, cleanup := initServices(cfg)
	defer cleanup()

	// 设置JWT密钥
	routers.SetJWTSecret(cfg.JWT.Secret)
	grpcserver.SetJWTSecret(cfg.JWT.Secret)

	// 初始化Gin
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// HTTP服务器 (Gin)
	httpRouter := routers.SetupRouter(&routers.Services{
		Risk:   services.risk,
		Orders: services.orders,
		Audit:  services.audit,
	}, routers.Options{
		APIKey:       cfg.Security.APIKey,
		RateLimitRPS: cfg.Security.RateLimitRPS,
		Ready:        services.ready,
	})
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      httpRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// gRPC服务器
	grpcPort := fmt.Sprintf("%d", cfg.App.GRPCPort)
	grpcSrv, err := grpcserver.NewServer(
		&grpcserver.ServerConfig{Port: grpcPort},
		&grpcserver.Services{Risk: services.risk},
	)
	if err != nil {
		logger.Fatalf("Failed to create gRPC server: %v", err)
	}

	// 启动HTTP服务器
	go func() {
		logger.Infof("HTTP server (Gin) listening on port %d", cfg.App.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// 启动gRPC服务器
	go func() {
		if err := grpcSrv.Start(); err != nil {
			logger.Fatalf("Failed to start gRPC server: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 关闭HTTP服务器
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("HTTP server forced to shutdown: %v", err)
	}

	// 关闭gRPC服务器
	grpcSrv.Stop()

	// 等待在途的审计与告警通知
	services.risk.Wait()

	if err := shutdownTracing(ctx); err != nil {
		logger.Errorf("Failed to flush traces: %v", err)
	}

	logger.Info("Servers exited")
}

func autoMigrate() error {
	return database.AutoMigrate(
		// RiskControl
		&riskcontrol.RiskProfile{},
		&riskcontrol.DeviceFingerprint{},
		&riskcontrol.BlacklistEntry{},
		&riskcontrol.FraudAlert{},
		// Order
		&order.Order{},
		// Audit
		&audit.AuditLog{},
		// Notification
		&notification.Notification{},
	)
}

type services struct {
	risk   riskcontrol.Service
	orders order.Service
	audit  audit.Service
	ready  func(ctx context.Context) error
}

func initServices(cfg *config.Config) (*services, func()) {
	engineCfg, err := riskcontrol.ConfigFromSettings(cfg.Risk)
	if err != nil {
		logger.Fatalf("Invalid risk configuration: %v", err)
	}
	bins := riskcontrol.BINLookupFromSettings(cfg.Risk)

	if cfg.Risk.StorageDriver == "memory" {
		logger.Warn("Using in-memory storage, state is lost on restart")
		orderSvc := order.NewService(order.NewMemoryRepository(), nil)
		return &services{
			risk: riskcontrol.NewService(engineCfg, riskcontrol.Dependencies{
				History:   orderSvc,
				Profiles:  riskcontrol.NewMemoryProfileStore(),
				Devices:   riskcontrol.NewMemoryDeviceRegistry(),
				Blacklist: riskcontrol.NewMemoryBlacklist(),
				BINs:      bins,
			}),
			orders: orderSvc,
		}, func() {}
	}

	// 初始化数据库
	if err := database.Init(cfg.Database, cfg.App.Env); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}

	// 自动迁移
	if err := autoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// 初始化Redis，不可用时频率检测直接查库
	var window order.VelocityCache
	if err := cache.Init(cfg.Redis); err != nil {
		logger.Warnf("Redis unavailable, velocity window disabled: %v", err)
	} else {
		window = cache.NewWindow(cache.GetClient(), "velocity", engineCfg.VelocityWindow)
	}

	db := database.GetDB()

	// Repositories
	orderRepo := order.NewRepository(db)
	auditRepo := audit.NewRepository(db)
	notificationRepo := notification.NewRepository(db)

	// Services
	orderSvc := order.NewService(orderRepo, window)
	auditSvc := audit.NewService(auditRepo)
	notificationSvc := notification.NewService(notificationRepo, notification.Config{
		WebhookURLs:    cfg.Notification.WebhookURLs,
		WebhookSecret:  cfg.Notification.WebhookSecret,
		FraudTeamEmail: cfg.Notification.FraudTeamEmail,
	})
	alerts := riskcontrol.NewAlertManager(riskcontrol.NewAlertRepository(db), notificationSvc, 10*time.Second)

	riskSvc := riskcontrol.NewService(engineCfg, riskcontrol.Dependencies{
		History:   orderSvc,
		Profiles:  riskcontrol.NewProfileRepository(db),
		Devices:   riskcontrol.NewDeviceRepository(db),
		Blacklist: riskcontrol.NewBlacklistRepository(db),
		BINs:      bins,
		Alerts:    alerts,
		Audit:     auditSvc,
	})

	cleanup := func() {
		if window != nil {
			_ = cache.Close()
		}
		_ = database.Close()
	}
	return &services{risk: riskSvc, orders: orderSvc, audit: auditSvc, ready: database.Ping}, cleanup
}
