package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewClientFromRedis(rdb), mr
}

func TestSessionLock_MutualExclusion(t *testing.T) {
	client, _ := newTestClient(t)
	lock := NewSessionLock(client)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "p1", "s1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// 另一个会话拿不到同一项目的锁
	ok, err = lock.Acquire(ctx, "p1", "s2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// 不同项目互不影响
	ok, err = lock.Acquire(ctx, "p2", "s3", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSessionLock_OnlyHolderReleases(t *testing.T) {
	client, _ := newTestClient(t)
	lock := NewSessionLock(client)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "p1", "s1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// 非持有者释放是空操作
	require.NoError(t, lock.Release(ctx, "p1", "other"))
	holder, err := lock.Holder(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "s1", holder)

	// 持有者释放后锁可被重新获取
	require.NoError(t, lock.Release(ctx, "p1", "s1"))
	ok, err = lock.Acquire(ctx, "p1", "s2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSessionLock_ExpiresByTTL(t *testing.T) {
	client, mr := newTestClient(t)
	lock := NewSessionLock(client)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "p1", "s1", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	// 崩溃的会话不释放锁，TTL 过期后项目恢复可用
	mr.FastForward(time.Second)

	ok, err = lock.Acquire(ctx, "p1", "s2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCache_GetOrLoadSafe(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewCache(client)
	ctx := context.Background()

	loads := 0
	loader := func() (interface{}, error) {
		loads++
		return map[string]string{"status": "deployed"}, nil
	}

	first, err := cache.GetOrLoadSafe(ctx, BuildDeploymentKey("p1"), time.Minute, loader)
	require.NoError(t, err)
	assert.Contains(t, string(first), "deployed")
	assert.Equal(t, 1, loads)

	// 第二次命中缓存，loader 不再执行
	second, err := cache.GetOrLoadSafe(ctx, BuildDeploymentKey("p1"), time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, loads)
}

func TestCache_InvalidateProject(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewCache(client)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, BuildProjectKey("p1"), "a", time.Minute))
	require.NoError(t, cache.Set(ctx, BuildDeploymentKey("p1"), "b", time.Minute))
	require.NoError(t, cache.Set(ctx, BuildProjectKey("p2"), "c", time.Minute))

	require.NoError(t, cache.InvalidateProject(ctx, "p1"))

	_, err := cache.Get(ctx, BuildProjectKey("p1"))
	assert.True(t, IsNil(err))
	_, err = cache.Get(ctx, BuildDeploymentKey("p1"))
	assert.True(t, IsNil(err))

	// 其他项目的缓存不受影响
	val, err := cache.Get(ctx, BuildProjectKey("p2"))
	require.NoError(t, err)
	assert.NotEmpty(t, val)
}
