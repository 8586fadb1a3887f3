package eventsourcing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/docstore/eventsourcing"
	memstore "github.com/wyfcoding/docstore/eventsourcing/persistence/memory"
)

func newTallyRepository(store eventsourcing.EventStore, opts ...eventsourcing.RepositoryOption) *eventsourcing.EventSourcedRepository[*tally] {
	return eventsourcing.NewEventSourcedRepository(store, func() *tally { return &tally{} }, opts...)
}

func TestRepositorySaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryEventStore()
	repo := newTallyRepository(store)

	agg := newTally("t-1")
	agg.Increment(2)
	agg.Increment(3)

	require.NoError(t, repo.Save(ctx, agg))
	assert.False(t, agg.HasUncommittedEvents())

	// 没有未提交事件时保存是空操作。
	require.NoError(t, repo.Save(ctx, agg))

	events, err := store.Load(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, events, 2)

	loaded, err := repo.Load(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), loaded.Total)
	assert.Equal(t, int64(2), loaded.Version())
	assert.False(t, loaded.HasUncommittedEvents())
}

func TestRepositoryLoadNotFound(t *testing.T) {
	repo := newTallyRepository(memstore.NewMemoryEventStore())

	_, err := repo.Load(context.Background(), "missing")
	require.ErrorIs(t, err, eventsourcing.ErrAggregateNotFound)
}

// 两个并发加载方基于同一版本各自提交时，后写方必须失败，事件流不被污染。
func TestRepositoryConcurrentSaveConflict(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryEventStore()
	repo := newTallyRepository(store)

	agg := newTally("t-1")
	agg.Increment(1)
	require.NoError(t, repo.Save(ctx, agg))

	first, err := repo.Load(ctx, "t-1")
	require.NoError(t, err)
	second, err := repo.Load(ctx, "t-1")
	require.NoError(t, err)

	first.Increment(10)
	require.NoError(t, repo.Save(ctx, first))

	second.Increment(100)
	err = repo.Save(ctx, second)
	require.ErrorIs(t, err, eventsourcing.ErrVersionConflict)

	// 冲突提交不写入任何事件。
	events, err := store.Load(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, events, 2)

	loaded, err := repo.Load(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, int64(11), loaded.Total)
	assert.Equal(t, int64(2), loaded.Version())
}

func TestRepositorySnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryEventStore()
	repo := newTallyRepository(store, eventsourcing.WithSnapshotStrategy(eventsourcing.NewDefaultSnapshotStrategy(2)))

	agg := newTally("t-1")
	agg.Increment(2)
	agg.Increment(3)
	require.NoError(t, repo.Save(ctx, agg))

	state, version, err := store.GetSnapshot(ctx, "t-1")
	require.NoError(t, err)
	require.NotEmpty(t, state)
	assert.Equal(t, int64(2), version)

	// 快照之后的增量事件在加载时接续回放。
	tail, err := repo.Load(ctx, "t-1")
	require.NoError(t, err)
	tail.Increment(5)
	require.NoError(t, repo.Save(ctx, tail))

	loaded, err := repo.Load(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), loaded.Total)
	assert.Equal(t, int64(3), loaded.Version())
}

// 快照损坏时回退到从头完整回放，不能让聚合带着半恢复状态上线。
func TestRepositoryCorruptedSnapshotFallsBackToReplay(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryEventStore()
	repo := newTallyRepository(store, eventsourcing.WithSnapshotStrategy(eventsourcing.NewDefaultSnapshotStrategy(2)))

	agg := newTally("t-1")
	agg.Increment(2)
	agg.Increment(3)
	agg.Increment(4)
	require.NoError(t, repo.Save(ctx, agg))

	require.NoError(t, store.SaveSnapshot(ctx, "t-1", []byte("{broken"), 2))

	loaded, err := repo.Load(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), loaded.Total)
	assert.Equal(t, int64(3), loaded.Version())
}

// bareTally 不实现 Snapshotter，快照策略对它静默跳过。
type bareTally struct {
	eventsourcing.AggregateRoot

	Total int64
}

func (a *bareTally) Bump(delta int64) {
	event := &tallyIncremented{
		BaseEvent: eventsourcing.NewBaseEvent(eventTallyIncremented, a.ID(), 0),
		Delta:     delta,
	}
	a.ApplyChange(event)
	_ = a.Apply(event)
}

func (a *bareTally) Apply(event eventsourcing.DomainEvent) error {
	incremented, ok := event.(*tallyIncremented)
	if !ok {
		return eventsourcing.ErrUnknownEventType
	}

	a.Total += incremented.Delta
	a.SetVersion(event.Version())

	return nil
}

func TestRepositorySkipsAggregatesWithoutSnapshotSupport(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryEventStore()

	bare := &bareTally{}
	bare.SetID("t-2")
	bare.Bump(1)

	repo := eventsourcing.NewEventSourcedRepository(store,
		func() *bareTally { return &bareTally{} },
		eventsourcing.WithSnapshotStrategy(eventsourcing.NewDefaultSnapshotStrategy(1)))
	require.NoError(t, repo.Save(ctx, bare))

	state, version, err := store.GetSnapshot(ctx, "t-2")
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.Zero(t, version)
}
