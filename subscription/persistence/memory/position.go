// Package memstore 提供进程内消费位置存储，供测试与本地开发使用。
package memstore

import (
	"context"
	"sync"

	"github.com/wyfcoding/docstore/subscription"
)

// MemoryPositionStore 进程内消费位置存储。
type MemoryPositionStore struct {
	mu        sync.RWMutex
	positions map[string]int64
}

var _ subscription.PositionStore = (*MemoryPositionStore)(nil)

// NewMemoryPositionStore 创建空的消费位置存储。
func NewMemoryPositionStore() *MemoryPositionStore {
	return &MemoryPositionStore{positions: make(map[string]int64)}
}

// Load 实现 subscription.PositionStore。
func (s *MemoryPositionStore) Load(ctx context.Context, consumer string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.positions[consumer], nil
}

// Commit 实现 subscription.PositionStore。
func (s *MemoryPositionStore) Commit(ctx context.Context, consumer string, position int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions[consumer] = position

	return nil
}
