package database

import (
	"context"
	"testing"
	"time"

	"fraud-risk-engine/pkg/config"
	"fraud-risk-engine/pkg/logger"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host: "db", Port: 5433, User: "risk", Password: "secret", DBName: "fraud_risk", SSLMode: "require",
	})
	assert.Equal(t, "host=db port=5433 user=risk password=secret dbname=fraud_risk sslmode=require TimeZone=UTC", dsn)
}

func TestUninitializedDatabase(t *testing.T) {
	db = nil
	assert.ErrorIs(t, Ping(context.Background()), ErrNotInitialized)
	assert.ErrorIs(t, AutoMigrate(), ErrNotInitialized)
	assert.NoError(t, Close())
}

func TestGormLogsGoThroughAppLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger.SetLogger(zap.New(core))

	l := newLogger("production", 50*time.Millisecond)
	begin := time.Now().Add(-time.Second)
	l.Trace(context.Background(), begin, func() (string, int64) {
		return "SELECT * FROM risk_profiles", 1
	}, nil)

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "SLOW SQL")
	assert.Contains(t, entries[0].Message, "SELECT * FROM risk_profiles")

	// 生产环境不记录普通查询
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT 1", 1
	}, nil)
	assert.Len(t, logs.All(), 1)
}
