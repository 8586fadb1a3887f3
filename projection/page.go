package projection

import (
	"context"

	"github.com/wyfcoding/docstore/eventsourcing"
	"github.com/wyfcoding/docstore/page"
	"github.com/wyfcoding/docstore/readmodel"
	"github.com/wyfcoding/docstore/workflow"
)

// PageProjector 维护页面读模型文档。
type PageProjector struct {
	store readmodel.PageStore
}

// NewPageProjector 创建页面投影器。
func NewPageProjector(store readmodel.PageStore) *PageProjector {
	return &PageProjector{store: store}
}

// Handlers 实现 Projector。
func (p *PageProjector) Handlers() map[string]Handler {
	return map[string]Handler{
		page.EventCreated:                  p.onCreated,
		page.EventCompoundMentionsUpdated:  p.onCompoundMentionsUpdated,
		page.EventTagMentionsUpdated:       p.onTagMentionsUpdated,
		page.EventTextMentionUpdated:       p.onTextMentionUpdated,
		page.EventSummaryCandidateUpdated:  p.onSummaryCandidateUpdated,
		page.EventTextEmbeddingGenerated:   p.onTextEmbeddingGenerated,
		page.EventSmilesEmbeddingGenerated: p.onSmilesEmbeddingGenerated,
		page.EventWorkflowStatusUpdated:    p.onWorkflowStatusUpdated,
		page.EventDeleted:                  p.onDeleted,
	}
}

func (p *PageProjector) onCreated(ctx context.Context, event eventsourcing.DomainEvent) error {
	e, ok := event.(*page.Created)
	if !ok {
		return wrongPayload(page.EventCreated, event)
	}

	return p.store.Insert(ctx, &readmodel.PageDocument{
		PageID:             e.AggregateID(),
		Name:               e.Name,
		ArtifactID:         e.ArtifactID,
		Index:              e.Index,
		LastAppliedVersion: e.Version(),
	})
}

func (p *PageProjector) onCompoundMentionsUpdated(ctx context.Context, event eventsourcing.DomainEvent) error {
	e, ok := event.(*page.CompoundMentionsUpdated)
	if !ok {
		return wrongPayload(page.EventCompoundMentionsUpdated, event)
	}

	return p.store.Update(ctx, e.AggregateID(), e.Version(), readmodel.Fields{"compound_mentions": e.CompoundMentions})
}

func (p *PageProjector) onTagMentionsUpdated(ctx context.Context, event eventsourcing.DomainEvent) error {
	e, ok := event.(*page.TagMentionsUpdated)
	if !ok {
		return wrongPayload(page.EventTagMentionsUpdated, event)
	}

	return p.store.Update(ctx, e.AggregateID(), e.Version(), readmodel.Fields{"tag_mentions": e.TagMentions})
}

func (p *PageProjector) onTextMentionUpdated(ctx context.Context, event eventsourcing.DomainEvent) error {
	e, ok := event.(*page.TextMentionUpdated)
	if !ok {
		return wrongPayload(page.EventTextMentionUpdated, event)
	}

	return p.store.Update(ctx, e.AggregateID(), e.Version(), readmodel.Fields{"text_mention": e.TextMention})
}

func (p *PageProjector) onSummaryCandidateUpdated(ctx context.Context, event eventsourcing.DomainEvent) error {
	e, ok := event.(*page.SummaryCandidateUpdated)
	if !ok {
		return wrongPayload(page.EventSummaryCandidateUpdated, event)
	}

	return p.store.Update(ctx, e.AggregateID(), e.Version(), readmodel.Fields{"summary_candidate": e.SummaryCandidate})
}

func (p *PageProjector) onTextEmbeddingGenerated(ctx context.Context, event eventsourcing.DomainEvent) error {
	e, ok := event.(*page.TextEmbeddingGenerated)
	if !ok {
		return wrongPayload(page.EventTextEmbeddingGenerated, event)
	}

	return p.store.Update(ctx, e.AggregateID(), e.Version(), readmodel.Fields{"text_embedding_metadata": e.EmbeddingMetadata})
}

func (p *PageProjector) onSmilesEmbeddingGenerated(ctx context.Context, event eventsourcing.DomainEvent) error {
	e, ok := event.(*page.SmilesEmbeddingGenerated)
	if !ok {
		return wrongPayload(page.EventSmilesEmbeddingGenerated, event)
	}

	return p.store.Update(ctx, e.AggregateID(), e.Version(), readmodel.Fields{"smiles_embedding_metadata": e.EmbeddingMetadata})
}

func (p *PageProjector) onWorkflowStatusUpdated(ctx context.Context, event eventsourcing.DomainEvent) error {
	e, ok := event.(*page.WorkflowStatusUpdated)
	if !ok {
		return wrongPayload(page.EventWorkflowStatusUpdated, event)
	}

	doc, err := p.store.Get(ctx, e.AggregateID())
	if err != nil {
		return err
	}

	statuses := make(map[workflow.Name]workflow.Status, len(doc.WorkflowStatuses)+1)
	for name, status := range doc.WorkflowStatuses {
		statuses[name] = status
	}
	statuses[e.WorkflowName] = e.Status

	return p.store.Update(ctx, e.AggregateID(), e.Version(), readmodel.Fields{"workflow_statuses": statuses})
}

func (p *PageProjector) onDeleted(ctx context.Context, event eventsourcing.DomainEvent) error {
	e, ok := event.(*page.Deleted)
	if !ok {
		return wrongPayload(page.EventDeleted, event)
	}

	return p.store.Update(ctx, e.AggregateID(), e.Version(), readmodel.Fields{
		"deleted":    true,
		"deleted_at": e.DeletedAt,
	})
}
