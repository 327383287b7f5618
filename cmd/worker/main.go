package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"fraud-risk-engine/internal/audit"
	"fraud-risk-engine/internal/notification"
	"fraud-risk-engine/internal/riskcontrol"
	"fraud-risk-engine/pkg/cache"
	"fraud-risk-engine/pkg/config"
	"fraud-risk-engine/pkg/database"
	"fraud-risk-engine/pkg/logger"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化日志
	logger.Init(cfg.App.Env, cfg.App.LogLevel)
	defer logger.Sync()

	logger.Info("Starting worker...")

	if cfg.Risk.StorageDriver == "memory" {
		logger.Fatalf("Worker requires postgres storage, got %q", cfg.Risk.StorageDriver)
	}

	// 初始化数据库
	if err := database.Init(cfg.Database, cfg.App.Env); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// 初始化Redis，用于多实例之间的任务锁
	if err := cache.Init(cfg.Redis); err != nil {
		logger.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer cache.Close()

	// 初始化服务
	services := initServices(cfg)

	// 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runNotificationProcessor(ctx, services.notification, cfg.Notification.RetryInterval)
	}()
	go func() {
		defer wg.Done()
		runBlacklistSweeper(ctx, services.risk, cfg.Risk.SweepInterval)
	}()

	// 等待信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()

	// 等待任务完成
	wg.Wait()
	services.risk.Wait()
	logger.Info("Worker exited")
}

type services struct {
	risk         riskcontrol.Service
	notification notification.Service
}

func initServices(cfg *config.Config) *services {
	db := database.GetDB()

	engineCfg, err := riskcontrol.ConfigFromSettings(cfg.Risk)
	if err != nil {
		logger.Fatalf("Invalid risk configuration: %v", err)
	}

	notificationSvc := notification.NewService(notification.NewRepository(db), notification.Config{
		WebhookURLs:    cfg.Notification.WebhookURLs,
		WebhookSecret:  cfg.Notification.WebhookSecret,
		FraudTeamEmail: cfg.Notification.FraudTeamEmail,
	})

	riskSvc := riskcontrol.NewService(engineCfg, riskcontrol.Dependencies{
		Profiles:  riskcontrol.NewProfileRepository(db),
		Devices:   riskcontrol.NewDeviceRepository(db),
		Blacklist: riskcontrol.NewBlacklistRepository(db),
		Alerts:    riskcontrol.NewAlertManager(riskcontrol.NewAlertRepository(db), notificationSvc, 10*time.Second),
		Audit:     audit.NewService(audit.NewRepository(db)),
	})

	return &services{risk: riskSvc, notification: notificationSvc}
}

// runExclusive 持有分布式锁时执行一轮任务，其它实例跳过
func runExclusive(ctx context.Context, name string, ttl time.Duration, task func(context.Context)) {
	lock := cache.NewLock("worker:"+name, ttl)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		logger.Errorf("Failed to acquire %s lock: %v", name, err)
		return
	}
	if !ok {
		return
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warnf("Failed to release %s lock: %v", name, err)
		}
	}()
	task(ctx)
}

func runNotificationProcessor(ctx context.Context, svc notification.Service, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runExclusive(ctx, "notifications", interval, func(ctx context.Context) {
				sent, err := svc.ProcessPendingNotifications(ctx)
				if err != nil {
					logger.Errorf("Failed to process notifications: %v", err)
					return
				}
				if sent > 0 {
					logger.Infof("Delivered %d pending notifications", sent)
				}
			})
		}
	}
}

func runBlacklistSweeper(ctx context.Context, svc riskcontrol.Service, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runExclusive(ctx, "blacklist-sweep", interval, func(ctx context.Context) {
				if _, err := svc.SweepExpiredBlacklist(ctx); err != nil {
					logger.Errorf("Failed to sweep expired blacklist entries: %v", err)
				}
			})
		}
	}
}
