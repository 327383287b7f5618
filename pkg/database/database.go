package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fraud-risk-engine/pkg/config"
	"fraud-risk-engine/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var db *gorm.DB

// ErrNotInitialized 数据库未初始化
var ErrNotInitialized = errors.New("database not initialized")

// DSN 构造 postgres 连接串，时间统一按 UTC 存储
func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)
}

// zapWriter 将 gorm 日志写入应用日志
type zapWriter struct{}

func (zapWriter) Printf(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

// newLogger 开发环境记录全部 SQL，生产环境只记录慢查询和错误
func newLogger(env string, slow time.Duration) gormlogger.Interface {
	level := gormlogger.Info
	if env == "production" {
		level = gormlogger.Warn
	}
	return gormlogger.New(zapWriter{}, gormlogger.Config{
		SlowThreshold:             slow,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

// Init 初始化数据库连接
func Init(cfg config.DatabaseConfig, env string) error {
	conn, err := gorm.Open(postgres.Open(DSN(cfg)), &gorm.Config{
		Logger:  newLogger(env, cfg.SlowQuery),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	db = conn
	logger.Infof("Database connected: %s:%d/%s", cfg.Host, cfg.Port, cfg.DBName)
	return nil
}

// GetDB 获取数据库实例
func GetDB() *gorm.DB {
	return db
}

// Ping 检查连接是否可用，供健康检查使用
func Ping(ctx context.Context) error {
	if db == nil {
		return ErrNotInitialized
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func Close() error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate 自动迁移
func AutoMigrate(models ...interface{}) error {
	if db == nil {
		return ErrNotInitialized
	}
	return db.AutoMigrate(models...)
}
