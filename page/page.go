// Package page 实现页面聚合：制品的一页及其抽取结果、向量元数据
// 和各工作流的运行状态。ArtifactID 是非拥有型反向引用，级联只由删除服务驱动。
package page

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/docstore/eventsourcing"
	"github.com/wyfcoding/docstore/extraction"
	"github.com/wyfcoding/docstore/workflow"
)

// Page 页面聚合根。
type Page struct {
	eventsourcing.AggregateRoot

	Name                    string
	ArtifactID              string
	Index                   int
	CompoundMentions        []extraction.CompoundMention
	TagMentions             []extraction.TagMention
	TextMention             *extraction.TextMention
	SummaryCandidate        *extraction.SummaryCandidate
	TextEmbeddingMetadata   *extraction.EmbeddingMetadata
	SmilesEmbeddingMetadata *extraction.EmbeddingMetadata
	WorkflowStatuses        map[workflow.Name]workflow.Status
	IsDeleted               bool
	DeletedAt               time.Time
}

// New 创建空聚合实例，供仓储回放历史使用。
func New() *Page {
	return &Page{}
}

// Create 创建新页面：name 非空白、artifactID 必填、index 非负。
func Create(name, artifactID string, index int) (*Page, error) {
	name = strings.TrimSpace(name)

	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name must be provided", eventsourcing.ErrValidation)
	case artifactID == "":
		return nil, fmt.Errorf("%w: artifact_id must be provided", eventsourcing.ErrValidation)
	case index < 0:
		return nil, fmt.Errorf("%w: index must be non-negative", eventsourcing.ErrValidation)
	}

	p := New()
	p.SetID(uuid.New().String())

	event := &Created{
		BaseEvent:  eventsourcing.NewBaseEvent(EventCreated, p.ID(), 0),
		Name:       name,
		ArtifactID: artifactID,
		Index:      index,
	}
	if err := p.raise(event); err != nil {
		return nil, err
	}

	return p, nil
}

// UpdateCompoundMentions 整体替换化合物抽取结果。
func (p *Page) UpdateCompoundMentions(mentions []extraction.CompoundMention) error {
	if err := p.ensureMutable("update compound mentions"); err != nil {
		return err
	}

	return p.raise(&CompoundMentionsUpdated{
		BaseEvent:        eventsourcing.NewBaseEvent(EventCompoundMentionsUpdated, p.ID(), 0),
		CompoundMentions: mentions,
	})
}

// UpdateTagMentions 整体替换标签抽取结果。
func (p *Page) UpdateTagMentions(mentions []extraction.TagMention) error {
	if err := p.ensureMutable("update tag mentions"); err != nil {
		return err
	}

	return p.raise(&TagMentionsUpdated{
		BaseEvent:   eventsourcing.NewBaseEvent(EventTagMentionsUpdated, p.ID(), 0),
		TagMentions: mentions,
	})
}

// UpdateTextMention 更新正文抽取结果，传 nil 清除。
func (p *Page) UpdateTextMention(mention *extraction.TextMention) error {
	if err := p.ensureMutable("update text mention"); err != nil {
		return err
	}

	return p.raise(&TextMentionUpdated{
		BaseEvent:   eventsourcing.NewBaseEvent(EventTextMentionUpdated, p.ID(), 0),
		TextMention: mention,
	})
}

// UpdateSummaryCandidate 更新摘要候选，传 nil 清除。
func (p *Page) UpdateSummaryCandidate(candidate *extraction.SummaryCandidate) error {
	if err := p.ensureMutable("update summary candidate"); err != nil {
		return err
	}

	return p.raise(&SummaryCandidateUpdated{
		BaseEvent:        eventsourcing.NewBaseEvent(EventSummaryCandidateUpdated, p.ID(), 0),
		SummaryCandidate: candidate,
	})
}

// RecordTextEmbedding 记录文本向量元数据。
func (p *Page) RecordTextEmbedding(metadata extraction.EmbeddingMetadata) error {
	if err := p.ensureMutable("record text embedding"); err != nil {
		return err
	}

	return p.raise(&TextEmbeddingGenerated{
		BaseEvent:         eventsourcing.NewBaseEvent(EventTextEmbeddingGenerated, p.ID(), 0),
		EmbeddingMetadata: metadata,
	})
}

// RecordSmilesEmbedding 记录 SMILES 向量元数据。
func (p *Page) RecordSmilesEmbedding(metadata extraction.EmbeddingMetadata) error {
	if err := p.ensureMutable("record smiles embedding"); err != nil {
		return err
	}

	return p.raise(&SmilesEmbeddingGenerated{
		BaseEvent:         eventsourcing.NewBaseEvent(EventSmilesEmbeddingGenerated, p.ID(), 0),
		EmbeddingMetadata: metadata,
	})
}

// UpdateWorkflowStatus 记录某工作流在本页面上的运行状态。
func (p *Page) UpdateWorkflowStatus(name workflow.Name, status workflow.Status) error {
	if err := p.ensureMutable("update workflow status"); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: workflow name must be provided", eventsourcing.ErrValidation)
	}
	if err := status.Validate(); err != nil {
		return fmt.Errorf("%w: %v", eventsourcing.ErrValidation, err)
	}

	return p.raise(&WorkflowStatusUpdated{
		BaseEvent:    eventsourcing.NewBaseEvent(EventWorkflowStatusUpdated, p.ID(), 0),
		WorkflowName: name,
		Status:       status,
	})
}

// Delete 删除页面。已删除时为幂等空操作，不追加事件。
func (p *Page) Delete() error {
	if p.IsDeleted {
		return nil
	}

	return p.raise(&Deleted{
		BaseEvent: eventsourcing.NewBaseEvent(EventDeleted, p.ID(), 0),
		DeletedAt: time.Now(),
	})
}

// Apply 实现 eventsourcing.EventApplier：对全部事件类型的穷尽折叠。
func (p *Page) Apply(event eventsourcing.DomainEvent) error {
	switch e := event.(type) {
	case *Created:
		p.Name = e.Name
		p.ArtifactID = e.ArtifactID
		p.Index = e.Index
	case *CompoundMentionsUpdated:
		p.CompoundMentions = e.CompoundMentions
	case *TagMentionsUpdated:
		p.TagMentions = e.TagMentions
	case *TextMentionUpdated:
		p.TextMention = e.TextMention
	case *SummaryCandidateUpdated:
		p.SummaryCandidate = e.SummaryCandidate
	case *TextEmbeddingGenerated:
		metadata := e.EmbeddingMetadata
		p.TextEmbeddingMetadata = &metadata
	case *SmilesEmbeddingGenerated:
		metadata := e.EmbeddingMetadata
		p.SmilesEmbeddingMetadata = &metadata
	case *WorkflowStatusUpdated:
		if p.WorkflowStatuses == nil {
			p.WorkflowStatuses = make(map[workflow.Name]workflow.Status)
		}
		p.WorkflowStatuses[e.WorkflowName] = e.Status
	case *Deleted:
		p.DeletedAt = e.DeletedAt
		p.IsDeleted = true
	default:
		return fmt.Errorf("%w: %s", eventsourcing.ErrUnknownEventType, event.EventType())
	}

	p.SetVersion(event.Version())

	return nil
}

// raise 应用并登记一个新事件。
func (p *Page) raise(event eventsourcing.DomainEvent) error {
	p.ApplyChange(event)

	return p.Apply(event)
}

func (p *Page) ensureMutable(action string) error {
	if p.IsDeleted {
		return fmt.Errorf("%w: cannot %s on deleted page %s", eventsourcing.ErrInvalidOperation, action, p.ID())
	}

	return nil
}
