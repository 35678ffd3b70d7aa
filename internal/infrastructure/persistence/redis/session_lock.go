// Package redis 提供 Redis 缓存、锁与广播的底层客户端
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// 只有持有者能释放锁，避免超时会话误删后继会话的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SessionLock 跨实例的项目会话互斥锁
// SET NX + TTL：进程崩溃后锁自动过期，项目不会永久卡死。
type SessionLock struct {
	client *Client
}

// NewSessionLock 创建会话锁
func NewSessionLock(client *Client) *SessionLock {
	return &SessionLock{client: client}
}

func sessionLockKey(projectID string) string {
	return "genlock:" + projectID
}

// Acquire 尝试获取项目锁
func (l *SessionLock) Acquire(ctx context.Context, projectID, sessionID string, ttl time.Duration) (bool, error) {
	ctx, span := tracer.Start(ctx, "sessionlock.Acquire",
		trace.WithAttributes(
			attribute.String("lock.project_id", projectID),
			attribute.Int64("lock.ttl_ms", ttl.Milliseconds()),
		))
	defer span.End()

	ok, err := l.client.rdb.SetNX(ctx, sessionLockKey(projectID), sessionID, ttl).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	span.SetAttributes(attribute.Bool("lock.acquired", ok))
	return ok, nil
}

// Release 释放项目锁，仅持有者可释放
func (l *SessionLock) Release(ctx context.Context, projectID, sessionID string) error {
	ctx, span := tracer.Start(ctx, "sessionlock.Release",
		trace.WithAttributes(attribute.String("lock.project_id", projectID)))
	defer span.End()

	if err := releaseScript.Run(ctx, l.client.rdb, []string{sessionLockKey(projectID)}, sessionID).Err(); err != nil && err != redis.Nil {
		span.RecordError(err)
		return fmt.Errorf("failed to release session lock: %w", err)
	}
	return nil
}

// Holder 返回当前锁持有者的会话 ID，无锁时返回空串
func (l *SessionLock) Holder(ctx context.Context, projectID string) (string, error) {
	holder, err := l.client.rdb.Get(ctx, sessionLockKey(projectID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return holder, nil
}
