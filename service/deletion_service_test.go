package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/docstore/artifact"
	"github.com/wyfcoding/docstore/eventsourcing"
	esmem "github.com/wyfcoding/docstore/eventsourcing/persistence/memory"
	"github.com/wyfcoding/docstore/page"
)

type deletionFixture struct {
	service   *DeletionService
	store     *esmem.MemoryEventStore
	flaky     *flakyEventStore
	artifacts eventsourcing.AggregateRepository[*artifact.Artifact]
	pages     eventsourcing.AggregateRepository[*page.Page]
}

func newDeletionFixture(t *testing.T) *deletionFixture {
	t.Helper()

	store := esmem.NewMemoryEventStore()
	flaky := newFlakyEventStore(store)
	artifacts := eventsourcing.NewEventSourcedRepository(flaky, artifact.New)
	pages := eventsourcing.NewEventSourcedRepository(flaky, page.New)

	return &deletionFixture{
		service:   NewDeletionService(artifacts, pages, nil),
		store:     store,
		flaky:     flaky,
		artifacts: artifacts,
		pages:     pages,
	}
}

// seedArtifactWithPages 建一个制品并挂上 n 个页面聚合。
func (f *deletionFixture) seedArtifactWithPages(t *testing.T, n int) (*artifact.Artifact, []string) {
	t.Helper()
	ctx := context.Background()

	a := seedArtifact(t, f.artifacts)

	pageIDs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p, err := page.Create(fmt.Sprintf("paper.pdf#%d", i+1), a.ID(), i+1)
		require.NoError(t, err)
		require.NoError(t, f.pages.Save(ctx, p))
		pageIDs = append(pageIDs, p.ID())
	}

	container, err := f.artifacts.Load(ctx, a.ID())
	require.NoError(t, err)
	require.NoError(t, container.AddPages(pageIDs))
	require.NoError(t, f.artifacts.Save(ctx, container))

	return a, pageIDs
}

// 两个页面的级联删除恰好写三条删除事件，其中一个页面提交
// 临时冲突后重试成功，不会多写。
func TestDeleteArtifactCascadesWithTransientConflict(t *testing.T) {
	ctx := context.Background()
	fixture := newDeletionFixture(t)
	container, pageIDs := fixture.seedArtifactWithPages(t, 2)

	fixture.flaky.injectConflicts(pageIDs[0], 1)

	require.NoError(t, fixture.service.DeleteArtifact(ctx, container.ID()))

	assert.Equal(t, 1, countEvents(t, fixture.store, container.ID(), artifact.EventDeleted))
	for _, pageID := range pageIDs {
		assert.Equal(t, 1, countEvents(t, fixture.store, pageID, page.EventDeleted))
	}

	deleted, err := fixture.artifacts.Load(ctx, container.ID())
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
}

func TestDeleteArtifactRerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fixture := newDeletionFixture(t)
	container, _ := fixture.seedArtifactWithPages(t, 2)

	require.NoError(t, fixture.service.DeleteArtifact(ctx, container.ID()))

	before, err := fixture.store.ReadAll(ctx, 0, 100)
	require.NoError(t, err)

	// 重跑：容器与页面的再次删除都是无事件的空操作。
	require.NoError(t, fixture.service.DeleteArtifact(ctx, container.ID()))

	after, err := fixture.store.ReadAll(ctx, 0, 100)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestDeleteArtifactReportsPersistentPageFailure(t *testing.T) {
	ctx := context.Background()
	fixture := newDeletionFixture(t)
	container, pageIDs := fixture.seedArtifactWithPages(t, 2)

	// 重试预算内永远冲突。
	fixture.flaky.injectConflicts(pageIDs[1], 100)

	err := fixture.service.DeleteArtifact(ctx, container.ID())
	require.Error(t, err)
	assert.ErrorIs(t, err, eventsourcing.ErrVersionConflict)
	assert.Contains(t, err.Error(), "1 of 2 pages failed")

	// 容器与健康页面照常删除，不因单页失败回滚。
	deleted, loadErr := fixture.artifacts.Load(ctx, container.ID())
	require.NoError(t, loadErr)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, 1, countEvents(t, fixture.store, pageIDs[0], page.EventDeleted))
	assert.Equal(t, 0, countEvents(t, fixture.store, pageIDs[1], page.EventDeleted))
}

func TestDeleteArtifactTreatsMissingPagesAsCleaned(t *testing.T) {
	ctx := context.Background()
	fixture := newDeletionFixture(t)
	container := seedArtifact(t, fixture.artifacts)

	// 容器登记了一个事件流中不存在的页面。
	loaded, err := fixture.artifacts.Load(ctx, container.ID())
	require.NoError(t, err)
	require.NoError(t, loaded.AddPages([]string{"ghost-page"}))
	require.NoError(t, fixture.artifacts.Save(ctx, loaded))

	require.NoError(t, fixture.service.DeleteArtifact(ctx, container.ID()))

	deleted, err := fixture.artifacts.Load(ctx, container.ID())
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
}

func TestDeleteArtifactMissingContainer(t *testing.T) {
	fixture := newDeletionFixture(t)

	err := fixture.service.DeleteArtifact(context.Background(), "no-such-artifact")
	require.ErrorIs(t, err, eventsourcing.ErrAggregateNotFound)
}
