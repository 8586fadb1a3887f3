package eventsourcing

import "context"

// EventStore 事件存储接口，按聚合维护只追加事件流。
type EventStore interface {
	// Save 以乐观并发方式追加事件。expectedVersion 为追加前聚合在存储中的版本，
	// 不一致时返回 ErrVersionConflict 且不写入任何事件。
	Save(ctx context.Context, aggregateID string, events []DomainEvent, expectedVersion int64) error

	// Load 加载指定聚合的全部事件（按版本升序）。
	Load(ctx context.Context, aggregateID string) ([]DomainEvent, error)

	// LoadFromVersion 从指定版本（含）开始加载事件。
	LoadFromVersion(ctx context.Context, aggregateID string, fromVersion int64) ([]DomainEvent, error)

	// GetSnapshot 获取聚合最新快照，无快照时返回 (nil, 0, nil)。
	GetSnapshot(ctx context.Context, aggregateID string) ([]byte, int64, error)

	// SaveSnapshot 保存聚合快照，同一聚合只保留最新一份。
	SaveSnapshot(ctx context.Context, aggregateID string, state []byte, version int64) error
}

// StoredEvent 全局事件流中的一条记录。Position 是存储层分配的全局单调序号，
// 订阅方以它为游标。
type StoredEvent struct {
	Event    DomainEvent
	Position int64
}

// EventStream 跨聚合的全局有序事件流。
type EventStream interface {
	// ReadAll 读取 afterPosition 之后的事件（按 Position 升序），最多 limit 条。
	ReadAll(ctx context.Context, afterPosition int64, limit int) ([]StoredEvent, error)
}

// SnapshotStrategy 快照策略接口。
type SnapshotStrategy interface {
	// ShouldSnapshot 判断本次提交后是否应该创建快照。
	// eventsLen 为本次新增事件数量。
	ShouldSnapshot(aggregate Aggregate, eventsLen int) bool
}

// DefaultSnapshotStrategy 基于版本间隔的快照策略。
type DefaultSnapshotStrategy struct {
	Interval int64
}

// NewDefaultSnapshotStrategy 创建基于间隔的快照策略。
func NewDefaultSnapshotStrategy(interval int64) *DefaultSnapshotStrategy {
	return &DefaultSnapshotStrategy{Interval: interval}
}

// ShouldSnapshot 当本次提交跨越间隔边界时创建快照。
func (s *DefaultSnapshotStrategy) ShouldSnapshot(aggregate Aggregate, eventsLen int) bool {
	if s.Interval <= 0 {
		return false
	}

	version := aggregate.Version()

	return version/s.Interval > (version-int64(eventsLen))/s.Interval
}
