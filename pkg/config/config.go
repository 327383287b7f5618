package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用配置
type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Security      SecurityConfig
	Risk          RiskConfig
	Notification  NotificationConfig
	Observability ObservabilityConfig
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string
	Version  string
	Port     int
	GRPCPort int
	Env      string // development, staging, production
	LogLevel string
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxIdleConns int
	MaxOpenConns int

	ConnMaxLifetime time.Duration
	SlowQuery       time.Duration
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret string
}

// SecurityConfig 调用方认证配置
type SecurityConfig struct {
	APIKey       string
	RateLimitRPS int
}

// RiskConfig 风控引擎配置
type RiskConfig struct {
	StorageDriver         string // postgres, memory
	PolicyFile            string
	VelocityWindow        time.Duration
	LargeAmountThreshold  string
	BlockThreshold        float64
	AnalysisTimeout       time.Duration
	WriteTimeout          time.Duration
	HighRiskCountries     []string
	PrepaidBINs           []string
	HighRiskBINs          []string
	BINCountries          map[string]string // BIN 前缀 -> 发卡国
	DefaultPhoneRegion    string
	BlacklistShortCircuit bool
	SweepInterval         time.Duration
}

// NotificationConfig 告警通知配置
type NotificationConfig struct {
	WebhookURLs    []string
	WebhookSecret  string
	FraudTeamEmail string
	RetryInterval  time.Duration
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	OTLPEndpoint string
}

// Load 加载配置
func Load() *Config {
	// .env 仅用于本地开发，不存在时忽略
	_ = godotenv.Load()

	port := getEnvInt("APP_PORT", 8080)
	return &Config{
		App: AppConfig{
			Name:     getEnv("APP_NAME", "fraud-risk-engine"),
			Version:  getEnv("APP_VERSION", "1.0.0"),
			Port:     port,
			GRPCPort: getEnvInt("GRPC_PORT", port+1),
			Env:      getEnv("APP_ENV", "development"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			DBName:       getEnv("DB_NAME", "fraud_risk"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 100),

			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			SlowQuery:       getEnvDuration("DB_SLOW_QUERY", 200*time.Millisecond),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		},
		Security: SecurityConfig{
			APIKey:       getEnv("RISK_API_KEY", ""),
			RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", 100),
		},
		Risk: RiskConfig{
			StorageDriver:         getEnv("RISK_STORAGE_DRIVER", "postgres"),
			PolicyFile:            getEnv("RISK_POLICY_FILE", ""),
			VelocityWindow:        getEnvDuration("RISK_VELOCITY_WINDOW", 24*time.Hour),
			LargeAmountThreshold:  getEnv("RISK_LARGE_AMOUNT_THRESHOLD", "5000"),
			BlockThreshold:        getEnvFloat("RISK_BLOCK_THRESHOLD", 95),
			AnalysisTimeout:       getEnvDuration("RISK_ANALYSIS_TIMEOUT", 3*time.Second),
			WriteTimeout:          getEnvDuration("RISK_WRITE_TIMEOUT", 5*time.Second),
			HighRiskCountries:     getEnvList("RISK_HIGH_RISK_COUNTRIES", nil),
			PrepaidBINs:           getEnvList("RISK_PREPAID_BINS", nil),
			HighRiskBINs:          getEnvList("RISK_HIGH_RISK_BINS", nil),
			DefaultPhoneRegion:    getEnv("RISK_DEFAULT_PHONE_REGION", "US"),
			BlacklistShortCircuit: getEnvBool("RISK_BLACKLIST_SHORT_CIRCUIT", true),
			SweepInterval:         getEnvDuration("RISK_SWEEP_INTERVAL", 10*time.Minute),
		},
		Notification: NotificationConfig{
			WebhookURLs:    getEnvList("ALERT_WEBHOOK_URLS", nil),
			WebhookSecret:  getEnv("ALERT_WEBHOOK_SECRET", ""),
			FraudTeamEmail: getEnv("ALERT_FRAUD_TEAM_EMAIL", ""),
			RetryInterval:  getEnvDuration("ALERT_RETRY_INTERVAL", 30*time.Second),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList 解析逗号分隔的列表
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return splitList(value)
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
