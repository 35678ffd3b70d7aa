package generation

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker 进程内的项目会话锁
// 单机部署时直接使用；多实例部署换用 Redis 实现。
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryLease
}

type memoryLease struct {
	owner   string
	expires time.Time
}

// NewMemoryLocker 创建进程内会话锁
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]memoryLease)}
}

// Acquire 实现 SessionLocker
func (l *MemoryLocker) Acquire(_ context.Context, projectID, sessionID string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if lease, ok := l.leases[projectID]; ok && now.Before(lease.expires) && lease.owner != sessionID {
		return false, nil
	}
	l.leases[projectID] = memoryLease{owner: sessionID, expires: now.Add(ttl)}
	return true, nil
}

// Release 实现 SessionLocker
func (l *MemoryLocker) Release(_ context.Context, projectID, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lease, ok := l.leases[projectID]; ok && lease.owner == sessionID {
		delete(l.leases, projectID)
	}
	return nil
}
