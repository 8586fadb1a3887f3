package projection

import (
	"context"
	"fmt"
	"slices"

	"github.com/wyfcoding/docstore/artifact"
	"github.com/wyfcoding/docstore/eventsourcing"
	"github.com/wyfcoding/docstore/readmodel"
)

// ArtifactProjector 维护制品读模型文档。
type ArtifactProjector struct {
	store readmodel.ArtifactStore
}

// NewArtifactProjector 创建制品投影器。
func NewArtifactProjector(store readmodel.ArtifactStore) *ArtifactProjector {
	return &ArtifactProjector{store: store}
}

// Handlers 实现 Projector。
func (p *ArtifactProjector) Handlers() map[string]Handler {
	return map[string]Handler{
		artifact.EventCreated:                 p.onCreated,
		artifact.EventPagesAdded:              p.onPagesAdded,
		artifact.EventPagesRemoved:            p.onPagesRemoved,
		artifact.EventTitleMentionUpdated:     p.onTitleMentionUpdated,
		artifact.EventSummaryCandidateUpdated: p.onSummaryCandidateUpdated,
		artifact.EventTagsUpdated:             p.onTagsUpdated,
		artifact.EventDeleted:                 p.onDeleted,
	}
}

func (p *ArtifactProjector) onCreated(ctx context.Context, event eventsourcing.DomainEvent) error {
	e, ok := event.(*artifact.Created)
	if !ok {
		return wrongPayload(artifact.EventCreated, event)
	}

	return p.store.Insert(ctx, &readmodel.ArtifactDocument{
		ArtifactID:         e.AggregateID(),
		SourceURI:          e.SourceURI,
		SourceFilename:     e.SourceFilename,
		ArtifactType:       e.ArtifactType,
		MimeType:           e.MimeType,
		StorageLocation:    e.StorageLocation,
		LastAppliedVersion: e.Version(),
	})
}

func (p *ArtifactProjector) onPagesAdded(ctx context.Context, event eventsourcing.DomainEvent) error {
	e, ok := event.(*artifact.PagesAdded)
	if !ok {
		return wrongPayload(artifact.EventPagesAdded, event)
	}

	doc, err := p.store.Get(ctx, e.AggregateID())
	if err != nil {
		return err
	}

	pageIDs := slices.Clone(doc.PageIDs)
	for _, pageID := range e.PageIDs {
		if !slices.Contains(pageIDs, pageID) {
			pageIDs = append(pageIDs, pageID)
		}
	}

	return p.store.Update(ctx, e.AggregateID(), e.Version(), readmodel.Fields{"page_ids": pageIDs})
}

func (p *ArtifactProjector) onPagesRemoved(ctx context.Context, event eventsourcing.DomainEvent) error {
	e, ok := event.(*artifact.PagesRemoved)
	if !ok {
		return wrongPayload(artifact.EventPagesRemoved, event)
	}

	doc, err := p.store.Get(ctx, e.AggregateID())
	if err != nil {
		return err
	}

	pageIDs := make([]string, 0, len(doc.PageIDs))
	for _, pageID := range doc.PageIDs {
		if !slices.Contains(e.PageIDs, pageID) {
			pageIDs = append(pageIDs, pageID)
		}
	}

	return p.store.Update(ctx, e.AggregateID(), e.Version(), readmodel.Fields{"page_ids": pageIDs})
}

func (p *ArtifactProjector) onTitleMentionUpdated(ctx context.Context, event eventsourcing.DomainEvent) error {
	e, ok := event.(*artifact.TitleMentionUpdated)
	if !ok {
		return wrongPayload(artifact.EventTitleMentionUpdated, event)
	}

	return p.store.Update(ctx, e.AggregateID(), e.Version(), readmodel.Fields{"title_mention": e.TitleMention})
}

func (p *ArtifactProjector) onSummaryCandidateUpdated(ctx context.Context, event eventsourcing.DomainEvent) error {
	e, ok := event.(*artifact.SummaryCandidateUpdated)
	if !ok {
		return wrongPayload(artifact.EventSummaryCandidateUpdated, event)
	}

	return p.store.Update(ctx, e.AggregateID(), e.Version(), readmodel.Fields{"summary_candidate": e.SummaryCandidate})
}

func (p *ArtifactProjector) onTagsUpdated(ctx context.Context, event eventsourcing.DomainEvent) error {
	e, ok := event.(*artifact.TagsUpdated)
	if !ok {
		return wrongPayload(artifact.EventTagsUpdated, event)
	}

	return p.store.Update(ctx, e.AggregateID(), e.Version(), readmodel.Fields{"tags": e.Tags})
}

func (p *ArtifactProjector) onDeleted(ctx context.Context, event eventsourcing.DomainEvent) error {
	e, ok := event.(*artifact.Deleted)
	if !ok {
		return wrongPayload(artifact.EventDeleted, event)
	}

	return p.store.Update(ctx, e.AggregateID(), e.Version(), readmodel.Fields{
		"deleted":    true,
		"deleted_at": e.DeletedAt,
	})
}

// wrongPayload 注册表解码产物与处理函数期望的载荷类型不一致。
func wrongPayload(expected string, event eventsourcing.DomainEvent) error {
	return fmt.Errorf("%w: expected %s payload, got %T", eventsourcing.ErrUnknownEventType, expected, event)
}
