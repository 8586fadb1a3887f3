package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/docstore/artifact"
	"github.com/wyfcoding/docstore/eventsourcing"
	esmem "github.com/wyfcoding/docstore/eventsourcing/persistence/memory"
	"github.com/wyfcoding/docstore/readmodel"
	rmmem "github.com/wyfcoding/docstore/readmodel/persistence/memory"
)

func newArtifactFixture(t *testing.T) (*ArtifactService, *esmem.MemoryEventStore, *rmmem.ArtifactStore, *capturePublisher) {
	t.Helper()

	store := esmem.NewMemoryEventStore()
	repo := eventsourcing.NewEventSourcedRepository(store, artifact.New)
	reads := rmmem.NewArtifactStore()
	publisher := &capturePublisher{}

	return NewArtifactService(repo, reads, publisher, nil), store, reads, publisher
}

func validCreateRequest() CreateArtifactRequest {
	return CreateArtifactRequest{
		SourceURI:       "s3://bucket/paper.pdf",
		SourceFilename:  "paper.pdf",
		ArtifactType:    string(artifact.TypeResearchArticle),
		MimeType:        artifact.MimeTypePDF,
		StorageLocation: "raw/paper.pdf",
	}
}

func TestArtifactCreatePersistsAndNotifies(t *testing.T) {
	ctx := context.Background()
	svc, store, _, publisher := newArtifactFixture(t)

	a, err := svc.Create(ctx, validCreateRequest())
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.False(t, a.HasUncommittedEvents())

	events, err := store.Load(ctx, a.ID())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, artifact.EventCreated, events[0].EventType())

	require.Len(t, publisher.events, 1)
	assert.Equal(t, artifact.EventCreated, publisher.events[0].EventType())
	assert.Equal(t, a.ID(), publisher.events[0].AggregateID())
}

func TestArtifactCreateRequestValidation(t *testing.T) {
	ctx := context.Background()
	svc, store, _, publisher := newArtifactFixture(t)

	req := validCreateRequest()
	req.SourceURI = ""

	_, err := svc.Create(ctx, req)
	require.ErrorIs(t, err, eventsourcing.ErrValidation)

	// 校验失败不落事件也不发通知。
	stream, err := store.ReadAll(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, stream)
	assert.Empty(t, publisher.events)
}

// 集成通知是尽力而为的旁路：发布失败不影响命令结果。
func TestArtifactCreateSurvivesPublisherFailure(t *testing.T) {
	ctx := context.Background()
	svc, store, _, publisher := newArtifactFixture(t)
	publisher.err = errors.New("kafka: all brokers down")

	a, err := svc.Create(ctx, validCreateRequest())
	require.NoError(t, err)

	events, err := store.Load(ctx, a.ID())
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestArtifactPageLinkCommands(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newArtifactFixture(t)

	a, err := svc.Create(ctx, validCreateRequest())
	require.NoError(t, err)

	require.NoError(t, svc.AddPages(ctx, ArtifactPagesRequest{ArtifactID: a.ID(), PageIDs: []string{"p-1", "p-2"}}))
	require.NoError(t, svc.RemovePages(ctx, ArtifactPagesRequest{ArtifactID: a.ID(), PageIDs: []string{"p-1"}}))

	err = svc.AddPages(ctx, ArtifactPagesRequest{ArtifactID: a.ID()})
	require.ErrorIs(t, err, eventsourcing.ErrValidation)

	events, err := store.Load(ctx, a.ID())
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, artifact.EventPagesAdded, events[1].EventType())
	assert.Equal(t, artifact.EventPagesRemoved, events[2].EventType())
}

func TestArtifactUpdateTags(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newArtifactFixture(t)

	a, err := svc.Create(ctx, validCreateRequest())
	require.NoError(t, err)

	require.NoError(t, svc.UpdateTags(ctx, UpdateArtifactTagsRequest{ArtifactID: a.ID(), Tags: []string{" kinase ", "kinase", "oncology"}}))

	loaded, err := eventsourcing.NewEventSourcedRepository(store, artifact.New).Load(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, []string{"kinase", "oncology"}, loaded.Tags)
}

func TestArtifactDeleteBlocksFurtherCommands(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newArtifactFixture(t)

	a, err := svc.Create(ctx, validCreateRequest())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, a.ID()))

	err = svc.AddPages(ctx, ArtifactPagesRequest{ArtifactID: a.ID(), PageIDs: []string{"p-1"}})
	require.ErrorIs(t, err, eventsourcing.ErrInvalidOperation)

	// 重复删除幂等。
	require.NoError(t, svc.Delete(ctx, a.ID()))
}

func TestArtifactCommandsOnMissingAggregate(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newArtifactFixture(t)

	err := svc.Delete(ctx, "missing")
	require.ErrorIs(t, err, eventsourcing.ErrAggregateNotFound)

	err = svc.UpdateTags(ctx, UpdateArtifactTagsRequest{ArtifactID: "missing", Tags: []string{"x"}})
	require.ErrorIs(t, err, eventsourcing.ErrAggregateNotFound)
}

func TestArtifactGetReadsFromReadModel(t *testing.T) {
	ctx := context.Background()
	svc, _, reads, _ := newArtifactFixture(t)

	_, err := svc.Get(ctx, "")
	require.ErrorIs(t, err, eventsourcing.ErrValidation)

	_, err = svc.Get(ctx, "a-1")
	require.ErrorIs(t, err, readmodel.ErrNotFound)

	require.NoError(t, reads.Insert(ctx, &readmodel.ArtifactDocument{
		ArtifactID:         "a-1",
		SourceFilename:     "paper.pdf",
		LastAppliedVersion: 1,
	}))

	doc, err := svc.Get(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "paper.pdf", doc.SourceFilename)
}
