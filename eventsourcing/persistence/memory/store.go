// Package memstore 提供内存版事件存储，用于测试与本地开发。
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/wyfcoding/docstore/eventsourcing"
)

type snapshotEntry struct {
	state   []byte
	version int64
}

// MemoryEventStore 内存版 EventStore 与 EventStream 实现。
// 全局事件流位置从 1 起单调递增，与数据库自增主键语义一致。
type MemoryEventStore struct {
	mu        sync.RWMutex
	streams   map[string][]eventsourcing.DomainEvent
	feed      []eventsourcing.StoredEvent
	snapshots map[string]snapshotEntry
}

// NewMemoryEventStore 创建内存事件存储。
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		streams:   make(map[string][]eventsourcing.DomainEvent),
		snapshots: make(map[string]snapshotEntry),
	}
}

// Save 实现 EventStore 接口。
func (s *MemoryEventStore) Save(ctx context.Context, aggregateID string, events []eventsourcing.DomainEvent, expectedVersion int64) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	currentVersion := int64(len(s.streams[aggregateID]))
	if currentVersion != expectedVersion {
		return fmt.Errorf("%w: aggregate %s expected version %d but store has %d",
			eventsourcing.ErrVersionConflict, aggregateID, expectedVersion, currentVersion)
	}

	for i, event := range events {
		event.SetVersion(expectedVersion + int64(i) + 1)
		s.streams[aggregateID] = append(s.streams[aggregateID], event)
		s.feed = append(s.feed, eventsourcing.StoredEvent{
			Position: int64(len(s.feed)) + 1,
			Event:    event,
		})
	}

	return nil
}

// Load 实现 EventStore 接口。
func (s *MemoryEventStore) Load(ctx context.Context, aggregateID string) ([]eventsourcing.DomainEvent, error) {
	return s.LoadFromVersion(ctx, aggregateID, 0)
}

// LoadFromVersion 实现 EventStore 接口。
func (s *MemoryEventStore) LoadFromVersion(ctx context.Context, aggregateID string, fromVersion int64) ([]eventsourcing.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[aggregateID]
	events := make([]eventsourcing.DomainEvent, 0, len(stream))
	for _, event := range stream {
		if event.Version() >= fromVersion {
			events = append(events, event)
		}
	}

	return events, nil
}

// ReadAll 实现 EventStream 接口。
func (s *MemoryEventStore) ReadAll(ctx context.Context, afterPosition int64, limit int) ([]eventsourcing.StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := make([]eventsourcing.StoredEvent, 0, limit)
	for _, stored := range s.feed {
		if stored.Position <= afterPosition {
			continue
		}
		stream = append(stream, stored)
		if len(stream) >= limit {
			break
		}
	}

	return stream, nil
}

// SaveSnapshot 实现 EventStore 接口。
func (s *MemoryEventStore) SaveSnapshot(ctx context.Context, aggregateID string, state []byte, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[aggregateID] = snapshotEntry{state: state, version: version}

	return nil
}

// GetSnapshot 实现 EventStore 接口。
func (s *MemoryEventStore) GetSnapshot(ctx context.Context, aggregateID string) ([]byte, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.snapshots[aggregateID]
	if !ok {
		return nil, 0, nil
	}

	return entry.state, entry.version, nil
}
