package eventsourcing

import (
	"context"
	"fmt"
	"log/slog"
)

// AggregateRepository 定义了聚合根的泛型仓储接口。
type AggregateRepository[A Aggregate] interface {
	// Save 保存聚合根中的未提交事件。
	Save(ctx context.Context, aggregate A) error
	// Load 通过 ID 加载聚合根并恢复其状态。
	Load(ctx context.Context, id string) (A, error)
}

type repositoryOptions struct {
	snapshots SnapshotStrategy
	logger    *slog.Logger
}

// RepositoryOption 仓储可选配置。
type RepositoryOption func(*repositoryOptions)

// WithSnapshotStrategy 启用快照：聚合实现 Snapshotter 且策略判定通过时，
// 提交后保存快照。默认关闭，加载时从版本 0 完整回放。
func WithSnapshotStrategy(strategy SnapshotStrategy) RepositoryOption {
	return func(o *repositoryOptions) {
		o.snapshots = strategy
	}
}

// WithRepositoryLogger 设置仓储日志器（仅用于快照等尽力而为路径）。
func WithRepositoryLogger(logger *slog.Logger) RepositoryOption {
	return func(o *repositoryOptions) {
		o.logger = logger
	}
}

// EventSourcedRepository 是基于泛型的事件溯源仓储实现。
type EventSourcedRepository[A Aggregate] struct {
	store   EventStore
	factory func() A
	opts    repositoryOptions
}

// NewEventSourcedRepository 创建一个新的事件溯源仓储。
func NewEventSourcedRepository[A Aggregate](store EventStore, factory func() A, opts ...RepositoryOption) *EventSourcedRepository[A] {
	options := repositoryOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}

	return &EventSourcedRepository[A]{
		store:   store,
		factory: factory,
		opts:    options,
	}
}

// Save 实现 AggregateRepository.Save。
func (r *EventSourcedRepository[A]) Save(ctx context.Context, aggregate A) error {
	events := aggregate.GetUncommittedEvents()
	if len(events) == 0 {
		return nil
	}

	// 期望版本为应用新事件之前的版本
	expectedVersion := aggregate.Version() - int64(len(events))
	if err := r.store.Save(ctx, aggregate.ID(), events, expectedVersion); err != nil {
		return fmt.Errorf("failed to save events to store: %w", err)
	}

	aggregate.MarkCommitted()
	r.maybeSnapshot(ctx, aggregate, len(events))

	return nil
}

// maybeSnapshot 按策略保存快照，失败只记日志，不影响提交结果。
func (r *EventSourcedRepository[A]) maybeSnapshot(ctx context.Context, aggregate A, eventsLen int) {
	if r.opts.snapshots == nil || !r.opts.snapshots.ShouldSnapshot(aggregate, eventsLen) {
		return
	}

	snapshotter, ok := any(aggregate).(Snapshotter)
	if !ok {
		return
	}

	state, err := snapshotter.Snapshot()
	if err != nil {
		r.opts.logger.WarnContext(ctx, "failed to build aggregate snapshot",
			"aggregate_id", aggregate.ID(), "version", aggregate.Version(), "error", err)

		return
	}

	if err := r.store.SaveSnapshot(ctx, aggregate.ID(), state, aggregate.Version()); err != nil {
		r.opts.logger.WarnContext(ctx, "failed to save aggregate snapshot",
			"aggregate_id", aggregate.ID(), "version", aggregate.Version(), "error", err)
	}
}

// Load 实现 AggregateRepository.Load。
func (r *EventSourcedRepository[A]) Load(ctx context.Context, id string) (A, error) {
	aggregate := r.factory()
	aggregate.SetID(id)

	// 1. 尝试从快照恢复
	if snapshotter, ok := any(aggregate).(Snapshotter); ok && r.opts.snapshots != nil {
		state, version, err := r.store.GetSnapshot(ctx, id)
		if err == nil && len(state) > 0 {
			if err := snapshotter.RestoreSnapshot(state); err == nil {
				aggregate.SetVersion(version)
			} else {
				// 快照损坏时退回完整回放
				aggregate.SetVersion(0)
				r.opts.logger.WarnContext(ctx, "failed to restore aggregate snapshot, replaying from scratch",
					"aggregate_id", id, "error", err)
			}
		}
	}

	// 2. 加载快照之后的事件（如果没有快照则加载所有事件）
	events, err := r.store.LoadFromVersion(ctx, id, aggregate.Version()+1)
	if err != nil {
		var zero A
		return zero, fmt.Errorf("failed to load events from store: %w", err)
	}

	if len(events) == 0 && aggregate.Version() == 0 {
		var zero A
		return zero, fmt.Errorf("%w: %s", ErrAggregateNotFound, id)
	}

	// 3. 回放事件恢复状态
	if err := LoadFromHistory(aggregate, events); err != nil {
		var zero A
		return zero, fmt.Errorf("failed to replay events for aggregate %s: %w", id, err)
	}

	return aggregate, nil
}
