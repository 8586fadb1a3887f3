package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/docstore/artifact"
	"github.com/wyfcoding/docstore/eventsourcing"
	"github.com/wyfcoding/docstore/extraction"
	"github.com/wyfcoding/docstore/page"
	"github.com/wyfcoding/docstore/workflow"
)

type startCall struct {
	name        workflow.Name
	aggregateID string
	arg         any
}

type fakeStarter struct {
	calls []startCall
	err   error
}

func (f *fakeStarter) Start(_ context.Context, name workflow.Name, aggregateID string, arg any) error {
	f.calls = append(f.calls, startCall{name: name, aggregateID: aggregateID, arg: arg})

	return f.err
}

type fakeTriggers struct {
	embeddings []string
	summaries  []string
	err        error
}

func (f *fakeTriggers) TriggerEmbedding(_ context.Context, pageID string) error {
	f.embeddings = append(f.embeddings, pageID)

	return f.err
}

func (f *fakeTriggers) TriggerPageSummarization(_ context.Context, pageID string) error {
	f.summaries = append(f.summaries, pageID)

	return f.err
}

func newTestPage(t *testing.T) *page.Page {
	t.Helper()

	p, err := page.Create("paper.pdf#1", "artifact-1", 1)
	require.NoError(t, err)

	return p
}

func newTestArtifact(t *testing.T) *artifact.Artifact {
	t.Helper()

	a, err := artifact.Create("s3://bucket/paper.pdf", "paper.pdf",
		artifact.TypeResearchArticle, artifact.MimeTypePDF, "raw/paper.pdf")
	require.NoError(t, err)

	return a
}

func lastEvent(t *testing.T, events []eventsourcing.DomainEvent) eventsourcing.StoredEvent {
	t.Helper()
	require.NotEmpty(t, events)

	return eventsourcing.StoredEvent{Event: events[len(events)-1], Position: int64(len(events))}
}

func TestPageCreatedStartsCompoundExtraction(t *testing.T) {
	starter := &fakeStarter{}
	triggers := &fakeTriggers{}
	dispatcher := NewDispatcher(starter, triggers)

	p := newTestPage(t)
	require.NoError(t, dispatcher.ProcessEvent(context.Background(), lastEvent(t, p.GetUncommittedEvents())))

	require.Len(t, starter.calls, 1)
	assert.Equal(t, workflow.CompoundExtraction, starter.calls[0].name)
	assert.Equal(t, p.ID(), starter.calls[0].aggregateID)
	assert.Equal(t, workflow.CompoundExtractionInput{PageID: p.ID(), ArtifactID: "artifact-1"}, starter.calls[0].arg)
	assert.Empty(t, triggers.embeddings)
}

func TestArtifactCreatedStartsSampleWorkflow(t *testing.T) {
	starter := &fakeStarter{}
	dispatcher := NewDispatcher(starter, &fakeTriggers{})

	a := newTestArtifact(t)
	require.NoError(t, dispatcher.ProcessEvent(context.Background(), lastEvent(t, a.GetUncommittedEvents())))

	require.Len(t, starter.calls, 1)
	assert.Equal(t, workflow.ArtifactSample, starter.calls[0].name)
	assert.Equal(t, workflow.ArtifactSampleInput{ArtifactID: a.ID(), StorageLocation: "raw/paper.pdf"}, starter.calls[0].arg)
}

func TestTextMentionUpdateTriggersEmbedding(t *testing.T) {
	starter := &fakeStarter{}
	triggers := &fakeTriggers{}
	dispatcher := NewDispatcher(starter, triggers)

	p := newTestPage(t)
	text, err := extraction.NewTextMention("page body", extraction.Metadata{})
	require.NoError(t, err)
	require.NoError(t, p.UpdateTextMention(&text))

	require.NoError(t, dispatcher.ProcessEvent(context.Background(), lastEvent(t, p.GetUncommittedEvents())))

	assert.Equal(t, []string{p.ID()}, triggers.embeddings)
	assert.Empty(t, starter.calls)
}

// 清除正文不触发向量计算。
func TestClearedTextMentionDoesNotTrigger(t *testing.T) {
	triggers := &fakeTriggers{}
	dispatcher := NewDispatcher(&fakeStarter{}, triggers)

	p := newTestPage(t)
	require.NoError(t, p.UpdateTextMention(nil))

	require.NoError(t, dispatcher.ProcessEvent(context.Background(), lastEvent(t, p.GetUncommittedEvents())))
	assert.Empty(t, triggers.embeddings)
}

func TestTextEmbeddingTriggersSummarization(t *testing.T) {
	triggers := &fakeTriggers{}
	dispatcher := NewDispatcher(&fakeStarter{}, triggers)

	p := newTestPage(t)
	meta, err := extraction.NewEmbeddingMetadata("emb-1", "text-encoder-v2", 768, extraction.EmbeddingTypeText)
	require.NoError(t, err)
	require.NoError(t, p.RecordTextEmbedding(meta))

	require.NoError(t, dispatcher.ProcessEvent(context.Background(), lastEvent(t, p.GetUncommittedEvents())))
	assert.Equal(t, []string{p.ID()}, triggers.summaries)
}

func TestCompoundMentionsStartSmilesEmbedding(t *testing.T) {
	starter := &fakeStarter{}
	dispatcher := NewDispatcher(starter, &fakeTriggers{})

	p := newTestPage(t)
	compound, err := extraction.NewCompoundMention("c1ccccc1", extraction.Metadata{})
	require.NoError(t, err)
	require.NoError(t, p.UpdateCompoundMentions([]extraction.CompoundMention{compound}))

	require.NoError(t, dispatcher.ProcessEvent(context.Background(), lastEvent(t, p.GetUncommittedEvents())))

	require.Len(t, starter.calls, 1)
	assert.Equal(t, workflow.SmilesEmbedding, starter.calls[0].name)
	assert.Equal(t, workflow.SmilesEmbeddingInput{PageID: p.ID()}, starter.calls[0].arg)
}

// 不匹配任何派发规则的事件原样放行。
func TestUnmatchedEventsPassThrough(t *testing.T) {
	starter := &fakeStarter{}
	triggers := &fakeTriggers{}
	dispatcher := NewDispatcher(starter, triggers)

	p := newTestPage(t)
	require.NoError(t, p.UpdateTagMentions(nil))
	require.NoError(t, p.Delete())

	for i, event := range p.GetUncommittedEvents()[1:] {
		require.NoError(t, dispatcher.ProcessEvent(context.Background(),
			eventsourcing.StoredEvent{Event: event, Position: int64(i + 2)}))
	}

	assert.Empty(t, starter.calls)
	assert.Empty(t, triggers.embeddings)
	assert.Empty(t, triggers.summaries)
}

func TestTriggerFailuresWrapDispatchFailed(t *testing.T) {
	triggers := &fakeTriggers{err: errors.New("page not found")}
	dispatcher := NewDispatcher(&fakeStarter{}, triggers)

	p := newTestPage(t)
	text, err := extraction.NewTextMention("body", extraction.Metadata{})
	require.NoError(t, err)
	require.NoError(t, p.UpdateTextMention(&text))

	err = dispatcher.ProcessEvent(context.Background(), lastEvent(t, p.GetUncommittedEvents()))
	require.ErrorIs(t, err, ErrDispatchFailed)

	// 已经是 ErrDispatchFailed 的错误不再二次包装。
	wrapped := fmt.Errorf("%w: temporal unavailable", ErrDispatchFailed)
	triggers.err = wrapped

	err = dispatcher.ProcessEvent(context.Background(), lastEvent(t, p.GetUncommittedEvents()))
	require.ErrorIs(t, err, ErrDispatchFailed)
	assert.Equal(t, wrapped, err)
}
