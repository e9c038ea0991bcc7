// Package cache 提供带 TTL 的键值存储抽象。
// 冷却时间与任务内容缓存都通过注入的 Store 实现，
// 多实例部署时使用 Redis，单实例或测试环境使用内存实现。
package cache

import (
	"context"
	"sync"
	"time"
)

// Store 定义带过期时间的键值存储能力。
// 所有实现都是尽力而为：缓存失效不应影响业务正确性。
type Store interface {
	// Get 返回键对应的值，键不存在或已过期时 ok 为 false。
	Get(ctx context.Context, key string) (value string, ok bool)
	// Set 写入键值并设置过期时间，ttl<=0 时使用实现默认值。
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX 仅在键不存在时写入，返回是否写入成功。
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Delete 删除键，键不存在时不报错。
	Delete(ctx context.Context, key string) error
}

const defaultTTL = time.Hour

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore 为进程内实现，仅适用于单实例部署与测试。
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore 构造空的内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}, now: time.Now}
}

// SetClock 覆盖时间源，便于测试过期逻辑。
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	m.now = now
}

// Get 实现 Store。
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return "", false
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return "", false
	}
	return entry.value, true
}

// Set 实现 Store。
func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

// SetNX 实现 Store。
func (m *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[key]; ok && m.now().Before(entry.expiresAt) {
		return false, nil
	}
	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	return true, nil
}

// Delete 实现 Store。
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
