package artifact

import (
	"time"

	"github.com/wyfcoding/docstore/eventsourcing"
	"github.com/wyfcoding/docstore/extraction"
)

// 制品事件类型标识。
const (
	EventCreated                 = "artifact.created"
	EventPagesAdded              = "artifact.pages_added"
	EventPagesRemoved            = "artifact.pages_removed"
	EventTitleMentionUpdated     = "artifact.title_mention_updated"
	EventSummaryCandidateUpdated = "artifact.summary_candidate_updated"
	EventTagsUpdated             = "artifact.tags_updated"
	EventDeleted                 = "artifact.deleted"
)

// Created 制品已创建。
type Created struct {
	eventsourcing.BaseEvent `json:"-"`

	SourceURI       string `json:"source_uri"`
	SourceFilename  string `json:"source_filename"`
	ArtifactType    Type   `json:"artifact_type"`
	MimeType        string `json:"mime_type"`
	StorageLocation string `json:"storage_location"`
}

// PagesAdded 新页面已关联，只携带实际新增的页面 ID。
type PagesAdded struct {
	eventsourcing.BaseEvent `json:"-"`

	PageIDs []string `json:"page_ids"`
}

// PagesRemoved 页面关联已解除，只携带实际移除的页面 ID。
type PagesRemoved struct {
	eventsourcing.BaseEvent `json:"-"`

	PageIDs []string `json:"page_ids"`
}

// TitleMentionUpdated 标题抽取结果已更新，nil 表示清除。
type TitleMentionUpdated struct {
	eventsourcing.BaseEvent `json:"-"`

	TitleMention *extraction.TitleMention `json:"title_mention"`
}

// SummaryCandidateUpdated 摘要候选已更新，nil 表示清除。
type SummaryCandidateUpdated struct {
	eventsourcing.BaseEvent `json:"-"`

	SummaryCandidate *extraction.SummaryCandidate `json:"summary_candidate"`
}

// TagsUpdated 标签集合已替换，携带规范化后的完整标签列表。
type TagsUpdated struct {
	eventsourcing.BaseEvent `json:"-"`

	Tags []string `json:"tags"`
}

// Deleted 制品已删除。
type Deleted struct {
	eventsourcing.BaseEvent `json:"-"`

	DeletedAt time.Time `json:"deleted_at"`
}

// RegisterEvents 把制品事件类型注册到事件注册表。
func RegisterEvents(registry *eventsourcing.Registry) {
	registry.Register(EventCreated, func() eventsourcing.DomainEvent { return &Created{} })
	registry.Register(EventPagesAdded, func() eventsourcing.DomainEvent { return &PagesAdded{} })
	registry.Register(EventPagesRemoved, func() eventsourcing.DomainEvent { return &PagesRemoved{} })
	registry.Register(EventTitleMentionUpdated, func() eventsourcing.DomainEvent { return &TitleMentionUpdated{} })
	registry.Register(EventSummaryCandidateUpdated, func() eventsourcing.DomainEvent { return &SummaryCandidateUpdated{} })
	registry.Register(EventTagsUpdated, func() eventsourcing.DomainEvent { return &TagsUpdated{} })
	registry.Register(EventDeleted, func() eventsourcing.DomainEvent { return &Deleted{} })
}
