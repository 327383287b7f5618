package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger

// Init 初始化日志
func Init(env, level string) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level != "" {
		if lvl, err := zapcore.ParseLevel(level); err == nil {
			config.Level = zap.NewAtomicLevelAt(lvl)
		}
	}
	config.InitialFields = map[string]interface{}{
		"service": "fraud-risk-engine",
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	log = logger.Sugar()
}

// SetLogger 替换日志实例（测试使用 zap.NewNop 等）
func SetLogger(l *zap.Logger) {
	log = l.Sugar()
}

// GetLogger 获取日志实例
func GetLogger() *zap.SugaredLogger {
	if log == nil {
		Init(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	}
	return log
}

// Info 信息日志
func Info(args ...interface{}) {
	GetLogger().Info(args...)
}

// Infof 格式化信息日志
func Infof(template string, args ...interface{}) {
	GetLogger().Infof(template, args...)
}

// Error 错误日志
func Error(args ...interface{}) {
	GetLogger().Error(args...)
}

// Errorf 格式化错误日志
func Errorf(template string, args ...interface{}) {
	GetLogger().Errorf(template, args...)
}

// Warn 警告日志
func Warn(args ...interface{}) {
	GetLogger().Warn(args...)
}

// Warnf 格式化警告日志
func Warnf(template string, args ...interface{}) {
	GetLogger().Warnf(template, args...)
}

// Debugf 格式化调试日志
func Debugf(template string, args ...interface{}) {
	GetLogger().Debugf(template, args...)
}

// Fatalf 格式化致命错误日志
func Fatalf(template string, args ...interface{}) {
	GetLogger().Fatalf(template, args...)
}

// WithFields 带字段的日志
func WithFields(fields map[string]interface{}) *zap.SugaredLogger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return GetLogger().With(args...)
}

// Sync 同步日志
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
