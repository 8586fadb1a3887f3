package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/docstore/artifact"
	"github.com/wyfcoding/docstore/readmodel"
)

func seedArtifact(t *testing.T, store *ArtifactStore, artifactID string) {
	t.Helper()

	require.NoError(t, store.Insert(context.Background(), &readmodel.ArtifactDocument{
		ArtifactID:         artifactID,
		SourceURI:          "s3://bucket/paper.pdf",
		SourceFilename:     "paper.pdf",
		ArtifactType:       artifact.TypeResearchArticle,
		MimeType:           artifact.MimeTypePDF,
		StorageLocation:    "raw/paper.pdf",
		LastAppliedVersion: 1,
	}))
}

func TestArtifactInsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewArtifactStore()
	seedArtifact(t, store, "a-1")

	doc, err := store.Get(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "paper.pdf", doc.SourceFilename)
	assert.Equal(t, int64(1), doc.LastAppliedVersion)
	assert.False(t, doc.CreatedAt.IsZero())

	// 返回的是副本，调用方的修改不影响存储。
	doc.SourceFilename = "tampered.pdf"
	again, err := store.Get(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "paper.pdf", again.SourceFilename)

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, readmodel.ErrNotFound)
}

func TestArtifactInsertDuplicate(t *testing.T) {
	store := NewArtifactStore()
	seedArtifact(t, store, "a-1")

	err := store.Insert(context.Background(), &readmodel.ArtifactDocument{ArtifactID: "a-1", LastAppliedVersion: 1})
	require.ErrorIs(t, err, readmodel.ErrAlreadyApplied)
}

func TestArtifactUpdateVersionGate(t *testing.T) {
	ctx := context.Background()
	store := NewArtifactStore()
	seedArtifact(t, store, "a-1")

	require.NoError(t, store.Update(ctx, "a-1", 2, readmodel.Fields{"tags": []string{"kinase"}}))

	doc, err := store.Get(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"kinase"}, doc.Tags)
	assert.Equal(t, int64(2), doc.LastAppliedVersion)

	// 旧版本重复投递：跳过，文档不变。
	err = store.Update(ctx, "a-1", 2, readmodel.Fields{"tags": []string{"stale"}})
	require.ErrorIs(t, err, readmodel.ErrAlreadyApplied)
	doc, err = store.Get(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"kinase"}, doc.Tags)

	// 跳号：完整性故障。
	err = store.Update(ctx, "a-1", 5, readmodel.Fields{"tags": []string{"gap"}})
	require.ErrorIs(t, err, readmodel.ErrVersionGap)

	// 文档缺失同样按跳号处理。
	err = store.Update(ctx, "missing", 2, readmodel.Fields{"tags": []string{"x"}})
	require.ErrorIs(t, err, readmodel.ErrVersionGap)
}

func TestPageStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewPageStore()

	require.NoError(t, store.Insert(ctx, &readmodel.PageDocument{
		PageID: "p-2", Name: "paper.pdf#2", ArtifactID: "a-1", Index: 2, LastAppliedVersion: 1,
	}))
	require.NoError(t, store.Insert(ctx, &readmodel.PageDocument{
		PageID: "p-1", Name: "paper.pdf#1", ArtifactID: "a-1", Index: 1, LastAppliedVersion: 1,
	}))
	require.NoError(t, store.Insert(ctx, &readmodel.PageDocument{
		PageID: "p-9", Name: "other.pdf#1", ArtifactID: "a-2", Index: 1, LastAppliedVersion: 1,
	}))

	err := store.Insert(ctx, &readmodel.PageDocument{PageID: "p-1", LastAppliedVersion: 1})
	require.ErrorIs(t, err, readmodel.ErrAlreadyApplied)

	require.NoError(t, store.Update(ctx, "p-1", 2, readmodel.Fields{"deleted": true}))
	err = store.Update(ctx, "p-1", 2, readmodel.Fields{"deleted": false})
	require.ErrorIs(t, err, readmodel.ErrAlreadyApplied)
	err = store.Update(ctx, "p-1", 9, readmodel.Fields{"deleted": false})
	require.ErrorIs(t, err, readmodel.ErrVersionGap)

	doc, err := store.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, doc.Deleted)

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, readmodel.ErrNotFound)
}

func TestListByArtifactOrdersByIndex(t *testing.T) {
	ctx := context.Background()
	store := NewPageStore()

	for _, page := range []struct {
		id    string
		index int
	}{{"p-3", 3}, {"p-1", 1}, {"p-2", 2}} {
		require.NoError(t, store.Insert(ctx, &readmodel.PageDocument{
			PageID: page.id, Name: "paper.pdf", ArtifactID: "a-1", Index: page.index, LastAppliedVersion: 1,
		}))
	}
	require.NoError(t, store.Insert(ctx, &readmodel.PageDocument{
		PageID: "p-other", Name: "other.pdf", ArtifactID: "a-2", Index: 0, LastAppliedVersion: 1,
	}))

	docs, err := store.ListByArtifact(ctx, "a-1")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"p-1", "p-2", "p-3"}, []string{docs[0].PageID, docs[1].PageID, docs[2].PageID})

	docs, err = store.ListByArtifact(ctx, "a-404")
	require.NoError(t, err)
	assert.Empty(t, docs)
}
