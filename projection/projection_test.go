package projection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/docstore/artifact"
	"github.com/wyfcoding/docstore/eventsourcing"
	"github.com/wyfcoding/docstore/page"
	"github.com/wyfcoding/docstore/readmodel"
	memstore "github.com/wyfcoding/docstore/readmodel/persistence/memory"
	"github.com/wyfcoding/docstore/workflow"
)

func newTestEngine(t *testing.T) (*Engine, *memstore.ArtifactStore, *memstore.PageStore) {
	t.Helper()

	artifacts := memstore.NewArtifactStore()
	pages := memstore.NewPageStore()
	engine := NewEngine(nil, NewArtifactProjector(artifacts), NewPageProjector(pages))

	return engine, artifacts, pages
}

func stored(event eventsourcing.DomainEvent, position int64) eventsourcing.StoredEvent {
	return eventsourcing.StoredEvent{Event: event, Position: position}
}

func newTestArtifact(t *testing.T) *artifact.Artifact {
	t.Helper()

	a, err := artifact.Create("s3://bucket/paper.pdf", "paper.pdf",
		artifact.TypeResearchArticle, artifact.MimeTypePDF, "raw/paper.pdf")
	require.NoError(t, err)

	return a
}

// 事件流按序投影后，读模型文档反映聚合终态。
func TestProjectArtifactLifecycle(t *testing.T) {
	ctx := context.Background()
	engine, artifacts, _ := newTestEngine(t)

	a := newTestArtifact(t)
	require.NoError(t, a.AddPages([]string{"p-1", "p-2"}))
	require.NoError(t, a.UpdateTags([]string{"kinase"}))
	require.NoError(t, a.RemovePages([]string{"p-1"}))
	require.NoError(t, a.Delete())

	for i, event := range a.GetUncommittedEvents() {
		require.NoError(t, engine.ProcessEvent(ctx, stored(event, int64(i+1))))
	}

	doc, err := artifacts.Get(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, "paper.pdf", doc.SourceFilename)
	assert.Equal(t, []string{"p-2"}, doc.PageIDs)
	assert.Equal(t, []string{"kinase"}, doc.Tags)
	assert.True(t, doc.Deleted)
	assert.NotNil(t, doc.DeletedAt)
	assert.Equal(t, int64(5), doc.LastAppliedVersion)
}

func TestProjectPageLifecycle(t *testing.T) {
	ctx := context.Background()
	engine, _, pages := newTestEngine(t)

	p, err := page.Create("paper.pdf#1", "a-1", 1)
	require.NoError(t, err)
	require.NoError(t, p.UpdateWorkflowStatus(workflow.CompoundExtraction, workflow.NewPending()))
	require.NoError(t, p.UpdateWorkflowStatus(workflow.Embedding, workflow.NewInProgress("wf-1", "queued")))

	for i, event := range p.GetUncommittedEvents() {
		require.NoError(t, engine.ProcessEvent(ctx, stored(event, int64(i+1))))
	}

	doc, err := pages.Get(ctx, p.ID())
	require.NoError(t, err)
	assert.Equal(t, "a-1", doc.ArtifactID)
	assert.Equal(t, 1, doc.Index)
	require.Len(t, doc.WorkflowStatuses, 2)
	assert.Equal(t, workflow.StatePending, doc.WorkflowStatuses[workflow.CompoundExtraction].State)
	assert.Equal(t, workflow.StateInProgress, doc.WorkflowStatuses[workflow.Embedding].State)
	assert.Equal(t, int64(3), doc.LastAppliedVersion)
}

// 同一事件的重复投递被跳过，读模型保持逐字节一致。
func TestDuplicateDeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, artifacts, _ := newTestEngine(t)

	a := newTestArtifact(t)
	require.NoError(t, a.UpdateTags([]string{"kinase"}))
	events := a.GetUncommittedEvents()

	for i, event := range events {
		require.NoError(t, engine.ProcessEvent(ctx, stored(event, int64(i+1))))
	}

	before, err := artifacts.Get(ctx, a.ID())
	require.NoError(t, err)

	// 整条历史重放一遍（崩溃恢复后的典型情形）。
	for i, event := range events {
		require.NoError(t, engine.ProcessEvent(ctx, stored(event, int64(i+1))))
	}

	after, err := artifacts.Get(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// 版本跳号说明上游事件被跳过，必须升级为完整性故障而不是继续前进。
func TestVersionGapEscalatesToIntegrityFailure(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t)

	a := newTestArtifact(t)
	require.NoError(t, a.UpdateTags([]string{"kinase"}))
	require.NoError(t, a.UpdateTags([]string{"kinase", "oncology"}))
	events := a.GetUncommittedEvents()

	require.NoError(t, engine.ProcessEvent(ctx, stored(events[0], 1)))

	// 跳过 v2 直接投 v3。
	err := engine.ProcessEvent(ctx, stored(events[2], 3))
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestUpdateWithoutDocumentEscalates(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t)

	a := newTestArtifact(t)
	require.NoError(t, a.UpdateTags([]string{"kinase"}))
	events := a.GetUncommittedEvents()

	// 创建事件从未投影，更新事件找不到文档。
	err := engine.ProcessEvent(ctx, stored(events[1], 2))
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestUnregisteredEventTypesPassThrough(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t)

	type foreignEvent struct {
		eventsourcing.BaseEvent `json:"-"`
	}

	event := &foreignEvent{BaseEvent: eventsourcing.NewBaseEvent("billing.invoiced", "inv-1", 1)}
	require.NoError(t, engine.ProcessEvent(ctx, stored(event, 1)))
}

// failingArtifactStore 模拟底层存储故障。
type failingArtifactStore struct {
	err error
}

func (s *failingArtifactStore) Insert(context.Context, *readmodel.ArtifactDocument) error {
	return s.err
}

func (s *failingArtifactStore) Update(context.Context, string, int64, readmodel.Fields) error {
	return s.err
}

func (s *failingArtifactStore) Get(context.Context, string) (*readmodel.ArtifactDocument, error) {
	return nil, s.err
}

// 基础设施故障保持可重投语义：不吞掉也不升级为完整性故障。
func TestInfrastructureFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("connection reset")
	engine := NewEngine(nil, NewArtifactProjector(&failingArtifactStore{err: storeErr}))

	a := newTestArtifact(t)
	err := engine.ProcessEvent(ctx, stored(a.GetUncommittedEvents()[0], 1))

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIntegrity)
	assert.ErrorIs(t, err, storeErr)
}
