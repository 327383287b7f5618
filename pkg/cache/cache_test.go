package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestWindowTrimKeepsMembersAtCutoff(t *testing.T) {
	mr, rdb := newTestRedis(t)
	w := NewWindow(rdb, "velocity", time.Hour)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, w.Add(ctx, "c1", "m1", t0))
	// cutoff == t0，m1 保留
	require.NoError(t, w.Add(ctx, "c1", "m2", t0.Add(time.Hour)))
	members, err := rdb.ZRange(ctx, "velocity:c1", 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, members)

	// cutoff 越过 t0，m1 被裁剪
	require.NoError(t, w.Add(ctx, "c1", "m3", t0.Add(time.Hour+time.Millisecond)))
	members, err = rdb.ZRange(ctx, "velocity:c1", 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3"}, members)

	assert.Equal(t, time.Hour, mr.TTL("velocity:c1"))
}

func TestWindowSinceRequiresFill(t *testing.T) {
	mr, rdb := newTestRedis(t)
	w := NewWindow(rdb, "velocity", time.Hour)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, w.Add(ctx, "c1", "m2", t0.Add(10*time.Minute)))
	members, complete, err := w.Since(ctx, "c1", t0)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, members)
	assert.False(t, complete)

	require.NoError(t, w.Fill(ctx, "c1", map[string]time.Time{
		"m0": t0.Add(-time.Minute),
		"m1": t0,
	}))
	members, complete, err = w.Since(ctx, "c1", t0)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, members)
	assert.True(t, complete)

	// 后续写入刷新标记过期时间但不新建标记
	mr.FastForward(30 * time.Minute)
	require.NoError(t, w.Add(ctx, "c1", "m3", t0.Add(20*time.Minute)))
	assert.Equal(t, time.Hour, mr.TTL("velocity:c1:ready"))
	require.NoError(t, w.Add(ctx, "c2", "x", t0))
	assert.False(t, mr.Exists("velocity:c2:ready"))

	require.NoError(t, w.Invalidate(ctx, "c1"))
	_, complete, err = w.Since(ctx, "c1", t0)
	require.NoError(t, err)
	assert.False(t, complete)

	require.NoError(t, w.Fill(ctx, "c1", nil))
	mr.FlushAll()
	members, complete, err = w.Since(ctx, "c1", t0)
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.False(t, complete)
}

func TestWindowReadError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	w := NewWindow(rdb, "velocity", time.Hour)
	mr.Close()

	_, _, err = w.Since(context.Background(), "c1", time.Now())
	assert.Error(t, err)
	assert.Error(t, w.Add(context.Background(), "c1", "m", time.Now()))
}

func TestLockIsExclusiveAndOwned(t *testing.T) {
	mr, rdb := newTestRedis(t)
	client = rdb
	t.Cleanup(func() { client = nil })
	ctx := context.Background()

	first := NewLock("worker:sweeper", time.Minute)
	second := NewLock("worker:sweeper", time.Minute)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// 非持有者释放不影响锁
	require.NoError(t, second.Release(ctx))
	assert.True(t, mr.Exists("lock:worker:sweeper"))

	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists("lock:worker:sweeper"))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL("lock:worker:sweeper"))
}
