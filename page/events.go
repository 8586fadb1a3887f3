package page

import (
	"time"

	"github.com/wyfcoding/docstore/eventsourcing"
	"github.com/wyfcoding/docstore/extraction"
	"github.com/wyfcoding/docstore/workflow"
)

// 页面事件类型标识。
const (
	EventCreated                  = "page.created"
	EventCompoundMentionsUpdated  = "page.compound_mentions_updated"
	EventTagMentionsUpdated       = "page.tag_mentions_updated"
	EventTextMentionUpdated       = "page.text_mention_updated"
	EventSummaryCandidateUpdated  = "page.summary_candidate_updated"
	EventTextEmbeddingGenerated   = "page.text_embedding_generated"
	EventSmilesEmbeddingGenerated = "page.smiles_embedding_generated"
	EventWorkflowStatusUpdated    = "page.workflow_status_updated"
	EventDeleted                  = "page.deleted"
)

// Created 页面已创建。
type Created struct {
	eventsourcing.BaseEvent `json:"-"`

	Name       string `json:"name"`
	ArtifactID string `json:"artifact_id"`
	Index      int    `json:"index"`
}

// CompoundMentionsUpdated 化合物抽取结果已整体替换。
type CompoundMentionsUpdated struct {
	eventsourcing.BaseEvent `json:"-"`

	CompoundMentions []extraction.CompoundMention `json:"compound_mentions"`
}

// TagMentionsUpdated 标签抽取结果已整体替换。
type TagMentionsUpdated struct {
	eventsourcing.BaseEvent `json:"-"`

	TagMentions []extraction.TagMention `json:"tag_mentions"`
}

// TextMentionUpdated 正文抽取结果已更新，nil 表示清除。
type TextMentionUpdated struct {
	eventsourcing.BaseEvent `json:"-"`

	TextMention *extraction.TextMention `json:"text_mention"`
}

// SummaryCandidateUpdated 摘要候选已更新，nil 表示清除。
type SummaryCandidateUpdated struct {
	eventsourcing.BaseEvent `json:"-"`

	SummaryCandidate *extraction.SummaryCandidate `json:"summary_candidate"`
}

// TextEmbeddingGenerated 文本向量已生成，向量本体在向量库，此处只记录元数据。
type TextEmbeddingGenerated struct {
	eventsourcing.BaseEvent `json:"-"`

	EmbeddingMetadata extraction.EmbeddingMetadata `json:"embedding_metadata"`
}

// SmilesEmbeddingGenerated SMILES 向量已生成。
type SmilesEmbeddingGenerated struct {
	eventsourcing.BaseEvent `json:"-"`

	EmbeddingMetadata extraction.EmbeddingMetadata `json:"embedding_metadata"`
}

// WorkflowStatusUpdated 某个工作流在本页面上的运行状态已更新。
type WorkflowStatusUpdated struct {
	eventsourcing.BaseEvent `json:"-"`

	WorkflowName workflow.Name   `json:"workflow_name"`
	Status       workflow.Status `json:"status"`
}

// Deleted 页面已删除。
type Deleted struct {
	eventsourcing.BaseEvent `json:"-"`

	DeletedAt time.Time `json:"deleted_at"`
}

// RegisterEvents 把页面事件类型注册到事件注册表。
func RegisterEvents(registry *eventsourcing.Registry) {
	registry.Register(EventCreated, func() eventsourcing.DomainEvent { return &Created{} })
	registry.Register(EventCompoundMentionsUpdated, func() eventsourcing.DomainEvent { return &CompoundMentionsUpdated{} })
	registry.Register(EventTagMentionsUpdated, func() eventsourcing.DomainEvent { return &TagMentionsUpdated{} })
	registry.Register(EventTextMentionUpdated, func() eventsourcing.DomainEvent { return &TextMentionUpdated{} })
	registry.Register(EventSummaryCandidateUpdated, func() eventsourcing.DomainEvent { return &SummaryCandidateUpdated{} })
	registry.Register(EventTextEmbeddingGenerated, func() eventsourcing.DomainEvent { return &TextEmbeddingGenerated{} })
	registry.Register(EventSmilesEmbeddingGenerated, func() eventsourcing.DomainEvent { return &SmilesEmbeddingGenerated{} })
	registry.Register(EventWorkflowStatusUpdated, func() eventsourcing.DomainEvent { return &WorkflowStatusUpdated{} })
	registry.Register(EventDeleted, func() eventsourcing.DomainEvent { return &Deleted{} })
}
