// Package eventsourcing 提供事件溯源的核心抽象和基础设施。
package eventsourcing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DomainEvent 领域事件基础接口。
type DomainEvent interface {
	// EventID 返回事件唯一标识。
	EventID() string
	// EventType 返回事件类型标识。
	EventType() string
	// OccurredAt 返回事件发生时间。
	OccurredAt() time.Time
	// AggregateID 返回聚合根 ID。
	AggregateID() string
	// Version 返回事件版本号。
	Version() int64
	// SetVersion 设置事件版本号。
	SetVersion(version int64)
	// Meta 返回事件元数据。
	Meta() Metadata
}

// BaseEvent 领域事件信封。具体事件以 `json:"-"` 内嵌该结构，
// 序列化时只输出载荷字段，信封字段由存储层单独持久化。
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`    // 事件发生时间。
	Metadata  Metadata  `json:"metadata"`     // 事件元数据。
	ID        string    `json:"id"`           // 事件唯一标识。
	Type      string    `json:"type"`         // 事件类型。
	AggID     string    `json:"aggregate_id"` // 聚合根 ID。
	Ver       int64     `json:"version"`      // 事件版本（聚合根版本）。
}

// Metadata 事件元数据。
type Metadata struct {
	Extra         map[string]string `json:"extra,omitempty"`          // 扩展元数据。
	CorrelationID string            `json:"correlation_id,omitempty"` // 关联 ID（用于追踪）。
	CausationID   string            `json:"causation_id,omitempty"`   // 因果 ID。
	UserID        string            `json:"user_id,omitempty"`        // 操作用户 ID。
	TraceID       string            `json:"trace_id,omitempty"`       // 链路追踪 ID。
}

// EventID 实现 DomainEvent 接口。
func (e *BaseEvent) EventID() string {
	return e.ID
}

// EventType 实现 DomainEvent 接口。
func (e *BaseEvent) EventType() string {
	return e.Type
}

// OccurredAt 实现 DomainEvent 接口。
func (e *BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID 实现 DomainEvent 接口。
func (e *BaseEvent) AggregateID() string {
	return e.AggID
}

// Version 实现 DomainEvent 接口。
func (e *BaseEvent) Version() int64 {
	return e.Ver
}

// SetVersion 实现 DomainEvent 接口。
func (e *BaseEvent) SetVersion(version int64) {
	e.Ver = version
}

// Meta 实现 DomainEvent 接口。
func (e *BaseEvent) Meta() Metadata {
	return e.Metadata
}

// RestoreBase 实现 Rehydrator 接口，存储层回放时用持久化的信封覆盖当前信封。
func (e *BaseEvent) RestoreBase(base BaseEvent) {
	*e = base
}

// NewBaseEvent 创建基础事件信封。
func NewBaseEvent(eventType, aggregateID string, version int64) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		AggID:     aggregateID,
		Ver:       version,
		Timestamp: time.Now(),
		Metadata: Metadata{
			Extra: make(map[string]string),
		},
	}
}

// NewBaseEventWithMetadata 创建带元数据的基础事件信封。
func NewBaseEventWithMetadata(eventType, aggregateID string, version int64, metadata Metadata) BaseEvent {
	event := NewBaseEvent(eventType, aggregateID, version)
	event.Metadata = metadata

	return event
}

// AggregateRoot 事件溯源聚合根基类。
type AggregateRoot struct {
	uncommitted []DomainEvent
	version     int64
	id          string
}

// ID 返回聚合根唯一标识。
func (a *AggregateRoot) ID() string {
	return a.id
}

// SetID 设置聚合根唯一标识。
func (a *AggregateRoot) SetID(id string) {
	a.id = id
}

// Version 返回聚合根当前版本号。
func (a *AggregateRoot) Version() int64 {
	return a.version
}

// SetVersion 设置聚合根版本号。
func (a *AggregateRoot) SetVersion(version int64) {
	a.version = version
}

// ApplyChange 应用一个新的领域事件：版本加一并标记到事件上。
func (a *AggregateRoot) ApplyChange(event DomainEvent) {
	a.version++
	event.SetVersion(a.version)
	a.uncommitted = append(a.uncommitted, event)
}

// GetUncommittedEvents 获取所有未提交的领域事件。
func (a *AggregateRoot) GetUncommittedEvents() []DomainEvent {
	return a.uncommitted
}

// MarkCommitted 标记所有事件已提交。
func (a *AggregateRoot) MarkCommitted() {
	a.uncommitted = nil
}

// HasUncommittedEvents 检查是否有未提交的事件。
func (a *AggregateRoot) HasUncommittedEvents() bool {
	return len(a.uncommitted) > 0
}

// EventApplier 事件应用器接口。
type EventApplier interface {
	// Apply 将事件应用到聚合根状态。未知事件类型必须返回 ErrUnknownEventType，
	// 保证每个聚合的折叠函数是全函数。
	Apply(event DomainEvent) error
}

// Aggregate 完整聚合接口。
type Aggregate interface {
	EventApplier
	ID() string
	Version() int64
	SetID(id string)
	SetVersion(version int64)
	ApplyChange(event DomainEvent)
	GetUncommittedEvents() []DomainEvent
	MarkCommitted()
}

// Snapshotter 支持快照的聚合根实现该接口。
type Snapshotter interface {
	// Snapshot 导出当前状态的 JSON 快照。
	Snapshot() ([]byte, error)
	// RestoreSnapshot 从 JSON 快照恢复状态。
	RestoreSnapshot(data []byte) error
}

// LoadFromHistory 按序回放事件历史恢复聚合根状态，首个折叠错误即中止。
func LoadFromHistory(aggregate EventApplier, events []DomainEvent) error {
	for _, event := range events {
		if err := aggregate.Apply(event); err != nil {
			return fmt.Errorf("failed to apply event %s at version %d: %w", event.EventType(), event.Version(), err)
		}
	}

	return nil
}
