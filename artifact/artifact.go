// Package artifact 实现制品聚合：一份被摄取的源文档（论文、专利等）
// 及其页面关联、抽取结果与删除状态。状态只能通过事件折叠演进。
package artifact

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/docstore/eventsourcing"
	"github.com/wyfcoding/docstore/extraction"
)

// Type 制品类型。
type Type string

const (
	// TypeResearchArticle 研究论文。
	TypeResearchArticle Type = "research_article"
	// TypePatent 专利文献。
	TypePatent Type = "patent"
	// TypePresentation 演示文稿。
	TypePresentation Type = "presentation"
	// TypeReport 技术报告。
	TypeReport Type = "report"
)

// 常见 MIME 类型。
const (
	MimeTypePDF  = "application/pdf"
	MimeTypePPT  = "application/vnd.ms-powerpoint"
	MimeTypePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	MimeTypeDOC  = "application/msword"
	MimeTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Artifact 制品聚合根。
type Artifact struct {
	eventsourcing.AggregateRoot

	SourceURI        string
	SourceFilename   string
	ArtifactType     Type
	MimeType         string
	StorageLocation  string
	Pages            []string
	TitleMention     *extraction.TitleMention
	SummaryCandidate *extraction.SummaryCandidate
	Tags             []string
	IsDeleted        bool
	DeletedAt        time.Time
}

// New 创建空聚合实例，供仓储回放历史使用。
func New() *Artifact {
	return &Artifact{}
}

// Create 创建新制品，所有参数去除首尾空白后必须非空。
func Create(sourceURI, sourceFilename string, artifactType Type, mimeType, storageLocation string) (*Artifact, error) {
	sourceURI = strings.TrimSpace(sourceURI)
	sourceFilename = strings.TrimSpace(sourceFilename)
	mimeType = strings.TrimSpace(mimeType)
	storageLocation = strings.TrimSpace(storageLocation)

	switch {
	case sourceURI == "":
		return nil, fmt.Errorf("%w: source_uri must be provided", eventsourcing.ErrValidation)
	case sourceFilename == "":
		return nil, fmt.Errorf("%w: source_filename must be provided", eventsourcing.ErrValidation)
	case artifactType == "":
		return nil, fmt.Errorf("%w: artifact_type must be provided", eventsourcing.ErrValidation)
	case mimeType == "":
		return nil, fmt.Errorf("%w: mime_type must be provided", eventsourcing.ErrValidation)
	case storageLocation == "":
		return nil, fmt.Errorf("%w: storage_location must be provided", eventsourcing.ErrValidation)
	}

	a := New()
	a.SetID(uuid.New().String())

	event := &Created{
		BaseEvent:       eventsourcing.NewBaseEvent(EventCreated, a.ID(), 0),
		SourceURI:       sourceURI,
		SourceFilename:  sourceFilename,
		ArtifactType:    artifactType,
		MimeType:        mimeType,
		StorageLocation: storageLocation,
	}
	if err := a.raise(event); err != nil {
		return nil, err
	}

	return a, nil
}

// AddPages 关联页面：去重保序，已关联的忽略；无实际变化时不产生事件。
func (a *Artifact) AddPages(pageIDs []string) error {
	if err := a.ensureMutable("add pages"); err != nil {
		return err
	}
	if len(pageIDs) == 0 {
		return nil
	}

	existing := make(map[string]struct{}, len(a.Pages))
	for _, id := range a.Pages {
		existing[id] = struct{}{}
	}

	seen := make(map[string]struct{}, len(pageIDs))
	toAdd := make([]string, 0, len(pageIDs))
	for _, id := range pageIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := existing[id]; ok {
			continue
		}
		toAdd = append(toAdd, id)
	}

	if len(toAdd) == 0 {
		return nil
	}

	return a.raise(&PagesAdded{
		BaseEvent: eventsourcing.NewBaseEvent(EventPagesAdded, a.ID(), 0),
		PageIDs:   toAdd,
	})
}

// RemovePages 解除页面关联：去重保序，仅移除当前已关联的；无变化时不产生事件。
func (a *Artifact) RemovePages(pageIDs []string) error {
	if err := a.ensureMutable("remove pages"); err != nil {
		return err
	}
	if len(pageIDs) == 0 {
		return nil
	}

	existing := make(map[string]struct{}, len(a.Pages))
	for _, id := range a.Pages {
		existing[id] = struct{}{}
	}

	seen := make(map[string]struct{}, len(pageIDs))
	toRemove := make([]string, 0, len(pageIDs))
	for _, id := range pageIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := existing[id]; !ok {
			continue
		}
		toRemove = append(toRemove, id)
	}

	if len(toRemove) == 0 {
		return nil
	}

	return a.raise(&PagesRemoved{
		BaseEvent: eventsourcing.NewBaseEvent(EventPagesRemoved, a.ID(), 0),
		PageIDs:   toRemove,
	})
}

// UpdateTitleMention 更新标题抽取结果，传 nil 清除。
func (a *Artifact) UpdateTitleMention(mention *extraction.TitleMention) error {
	if err := a.ensureMutable("update title mention"); err != nil {
		return err
	}

	return a.raise(&TitleMentionUpdated{
		BaseEvent:    eventsourcing.NewBaseEvent(EventTitleMentionUpdated, a.ID(), 0),
		TitleMention: mention,
	})
}

// UpdateSummaryCandidate 更新摘要候选，传 nil 清除。
func (a *Artifact) UpdateSummaryCandidate(candidate *extraction.SummaryCandidate) error {
	if err := a.ensureMutable("update summary candidate"); err != nil {
		return err
	}

	return a.raise(&SummaryCandidateUpdated{
		BaseEvent:        eventsourcing.NewBaseEvent(EventSummaryCandidateUpdated, a.ID(), 0),
		SummaryCandidate: candidate,
	})
}

// UpdateTags 替换标签集合：去首尾空白、丢弃空项、去重保序；
// 规范化结果与当前一致时不产生事件。
func (a *Artifact) UpdateTags(tags []string) error {
	if err := a.ensureMutable("update tags"); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(tags))
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		cleaned = append(cleaned, tag)
	}

	if equalStrings(cleaned, a.Tags) {
		return nil
	}

	return a.raise(&TagsUpdated{
		BaseEvent: eventsourcing.NewBaseEvent(EventTagsUpdated, a.ID(), 0),
		Tags:      cleaned,
	})
}

// Delete 删除制品。已删除时为幂等空操作，不追加事件。
func (a *Artifact) Delete() error {
	if a.IsDeleted {
		return nil
	}

	return a.raise(&Deleted{
		BaseEvent: eventsourcing.NewBaseEvent(EventDeleted, a.ID(), 0),
		DeletedAt: time.Now(),
	})
}

// Apply 实现 eventsourcing.EventApplier：对全部事件类型的穷尽折叠。
func (a *Artifact) Apply(event eventsourcing.DomainEvent) error {
	switch e := event.(type) {
	case *Created:
		a.SourceURI = e.SourceURI
		a.SourceFilename = e.SourceFilename
		a.ArtifactType = e.ArtifactType
		a.MimeType = e.MimeType
		a.StorageLocation = e.StorageLocation
	case *PagesAdded:
		existing := make(map[string]struct{}, len(a.Pages))
		for _, id := range a.Pages {
			existing[id] = struct{}{}
		}
		for _, id := range e.PageIDs {
			if _, ok := existing[id]; ok {
				continue
			}
			a.Pages = append(a.Pages, id)
			existing[id] = struct{}{}
		}
	case *PagesRemoved:
		removed := make(map[string]struct{}, len(e.PageIDs))
		for _, id := range e.PageIDs {
			removed[id] = struct{}{}
		}
		kept := a.Pages[:0]
		for _, id := range a.Pages {
			if _, ok := removed[id]; !ok {
				kept = append(kept, id)
			}
		}
		a.Pages = kept
	case *TitleMentionUpdated:
		a.TitleMention = e.TitleMention
	case *SummaryCandidateUpdated:
		a.SummaryCandidate = e.SummaryCandidate
	case *TagsUpdated:
		a.Tags = e.Tags
	case *Deleted:
		a.DeletedAt = e.DeletedAt
		a.IsDeleted = true
	default:
		return fmt.Errorf("%w: %s", eventsourcing.ErrUnknownEventType, event.EventType())
	}

	a.SetVersion(event.Version())

	return nil
}

// snapshotState 快照序列化形态。
type snapshotState struct {
	SourceURI        string                       `json:"source_uri"`
	SourceFilename   string                       `json:"source_filename"`
	ArtifactType     Type                         `json:"artifact_type"`
	MimeType         string                       `json:"mime_type"`
	StorageLocation  string                       `json:"storage_location"`
	Pages            []string                     `json:"pages,omitempty"`
	TitleMention     *extraction.TitleMention     `json:"title_mention,omitempty"`
	SummaryCandidate *extraction.SummaryCandidate `json:"summary_candidate,omitempty"`
	Tags             []string                     `json:"tags,omitempty"`
	IsDeleted        bool                         `json:"is_deleted"`
	DeletedAt        time.Time                    `json:"deleted_at"`
}

// Snapshot 实现 eventsourcing.Snapshotter。
func (a *Artifact) Snapshot() ([]byte, error) {
	return json.Marshal(snapshotState{
		SourceURI:        a.SourceURI,
		SourceFilename:   a.SourceFilename,
		ArtifactType:     a.ArtifactType,
		MimeType:         a.MimeType,
		StorageLocation:  a.StorageLocation,
		Pages:            a.Pages,
		TitleMention:     a.TitleMention,
		SummaryCandidate: a.SummaryCandidate,
		Tags:             a.Tags,
		IsDeleted:        a.IsDeleted,
		DeletedAt:        a.DeletedAt,
	})
}

// RestoreSnapshot 实现 eventsourcing.Snapshotter。
func (a *Artifact) RestoreSnapshot(data []byte) error {
	var state snapshotState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal artifact snapshot: %w", err)
	}

	a.SourceURI = state.SourceURI
	a.SourceFilename = state.SourceFilename
	a.ArtifactType = state.ArtifactType
	a.MimeType = state.MimeType
	a.StorageLocation = state.StorageLocation
	a.Pages = state.Pages
	a.TitleMention = state.TitleMention
	a.SummaryCandidate = state.SummaryCandidate
	a.Tags = state.Tags
	a.IsDeleted = state.IsDeleted
	a.DeletedAt = state.DeletedAt

	return nil
}

// raise 应用并登记一个新事件。
func (a *Artifact) raise(event eventsourcing.DomainEvent) error {
	a.ApplyChange(event)

	return a.Apply(event)
}

func (a *Artifact) ensureMutable(action string) error {
	if a.IsDeleted {
		return fmt.Errorf("%w: cannot %s on deleted artifact %s", eventsourcing.ErrInvalidOperation, action, a.ID())
	}

	return nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
