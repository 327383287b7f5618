package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"fraud-risk-engine/pkg/config"
	"fraud-risk-engine/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// Init 初始化Redis连接
func Init(cfg config.RedisConfig) error {
	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connected successfully")
	return nil
}

// GetClient 获取Redis客户端
func GetClient() *redis.Client {
	return client
}

// Close 关闭Redis连接
func Close() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// Window 基于有序集合的滑动时间窗口，score 为 unix 毫秒。
// 只有带完整标记的窗口才可替代数据库读取，标记由 Fill 写入。
type Window struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewWindow 创建滑动窗口，ttl 同时作为窗口长度
func NewWindow(rdb *redis.Client, prefix string, ttl time.Duration) *Window {
	return &Window{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (w *Window) key(id string) string {
	return w.prefix + ":" + id
}

func (w *Window) readyKey(id string) string {
	return w.prefix + ":" + id + ":ready"
}

// Add 写入一个成员并裁剪早于 at-ttl 的成员
func (w *Window) Add(ctx context.Context, id, member string, at time.Time) error {
	key := w.key(id)
	cutoff := at.Add(-w.ttl).UnixMilli()

	pipe := w.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	pipe.Expire(ctx, key, w.ttl)
	pipe.Expire(ctx, w.readyKey(id), w.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add window member: %w", err)
	}
	return nil
}

// Fill 用数据库中的成员回填窗口并标记为完整
func (w *Window) Fill(ctx context.Context, id string, members map[string]time.Time) error {
	key := w.key(id)
	pipe := w.rdb.TxPipeline()
	if len(members) > 0 {
		zs := make([]redis.Z, 0, len(members))
		for m, at := range members {
			zs = append(zs, redis.Z{Score: float64(at.UnixMilli()), Member: m})
		}
		pipe.ZAdd(ctx, key, zs...)
		pipe.Expire(ctx, key, w.ttl)
	}
	pipe.Set(ctx, w.readyKey(id), "1", w.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to fill window: %w", err)
	}
	return nil
}

// Invalidate 清除完整标记，下一次读取回源
func (w *Window) Invalidate(ctx context.Context, id string) error {
	if err := w.rdb.Del(ctx, w.readyKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate window: %w", err)
	}
	return nil
}

// Since 返回 since 之后的成员（按时间升序）以及窗口是否完整
func (w *Window) Since(ctx context.Context, id string, since time.Time) ([]string, bool, error) {
	pipe := w.rdb.Pipeline()
	ready := pipe.Exists(ctx, w.readyKey(id))
	members := pipe.ZRangeByScore(ctx, w.key(id), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	})
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, false, fmt.Errorf("failed to read window: %w", err)
	}
	return members.Val(), ready.Val() == 1, nil
}

// Lock 分布式锁
type Lock struct {
	key    string
	value  string
	expiry time.Duration
}

// NewLock 创建分布式锁
func NewLock(key string, expiry time.Duration) *Lock {
	return &Lock{
		key:    "lock:" + key,
		value:  uuid.New().String(),
		expiry: expiry,
	}
}

// Acquire 获取锁
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	return client.SetNX(ctx, l.key, l.value, l.expiry).Result()
}

// Release 释放锁
func (l *Lock) Release(ctx context.Context) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	return client.Eval(ctx, script, []string{l.key}, l.value).Err()
}
