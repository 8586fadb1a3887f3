package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wyfcoding/docstore/artifact"
	"github.com/wyfcoding/docstore/eventsourcing"
	"github.com/wyfcoding/docstore/extraction"
	"github.com/wyfcoding/docstore/messagequeue"
	"github.com/wyfcoding/docstore/readmodel"
)

// CreateArtifactRequest 创建制品请求。
type CreateArtifactRequest struct {
	SourceURI       string `json:"source_uri"       validate:"required"`
	SourceFilename  string `json:"source_filename"  validate:"required"`
	ArtifactType    string `json:"artifact_type"    validate:"required"`
	MimeType        string `json:"mime_type"        validate:"required"`
	StorageLocation string `json:"storage_location" validate:"required"`
}

// ArtifactPagesRequest 页面关联变更请求。
type ArtifactPagesRequest struct {
	ArtifactID string   `json:"artifact_id" validate:"required"`
	PageIDs    []string `json:"page_ids"    validate:"required,min=1,dive,required"`
}

// UpdateArtifactTagsRequest 标签替换请求。
type UpdateArtifactTagsRequest struct {
	ArtifactID string   `json:"artifact_id" validate:"required"`
	Tags       []string `json:"tags"`
}

// ArtifactService 制品命令与查询用例。
type ArtifactService struct {
	repo      eventsourcing.AggregateRepository[*artifact.Artifact]
	reads     readmodel.ArtifactStore
	publisher messagequeue.EventPublisher
	logger    *slog.Logger
}

// NewArtifactService 创建制品服务。publisher 为 nil 时跳过集成通知。
func NewArtifactService(
	repo eventsourcing.AggregateRepository[*artifact.Artifact],
	reads readmodel.ArtifactStore,
	publisher messagequeue.EventPublisher,
	logger *slog.Logger,
) *ArtifactService {
	if logger == nil {
		logger = slog.Default()
	}

	return &ArtifactService{
		repo:      repo,
		reads:     reads,
		publisher: publisher,
		logger:    logger,
	}
}

// Create 创建制品并发布集成通知。通知失败只记日志，不影响命令结果。
func (s *ArtifactService) Create(ctx context.Context, req CreateArtifactRequest) (*artifact.Artifact, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	a, err := artifact.Create(req.SourceURI, req.SourceFilename,
		artifact.Type(req.ArtifactType), req.MimeType, req.StorageLocation)
	if err != nil {
		return nil, err
	}

	created := a.GetUncommittedEvents()[0]

	if err := s.repo.Save(ctx, a); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "artifact created",
		"artifact_id", a.ID(), "source_filename", req.SourceFilename)
	s.notify(ctx, created)

	return a, nil
}

// AddPages 把页面关联到制品。
func (s *ArtifactService) AddPages(ctx context.Context, req ArtifactPagesRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	return s.execute(ctx, req.ArtifactID, func(a *artifact.Artifact) error {
		return a.AddPages(req.PageIDs)
	})
}

// RemovePages 解除页面与制品的关联。
func (s *ArtifactService) RemovePages(ctx context.Context, req ArtifactPagesRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	return s.execute(ctx, req.ArtifactID, func(a *artifact.Artifact) error {
		return a.RemovePages(req.PageIDs)
	})
}

// UpdateTitleMention 更新标题抽取结果，nil 表示清除。
func (s *ArtifactService) UpdateTitleMention(ctx context.Context, artifactID string, mention *extraction.TitleMention) error {
	return s.execute(ctx, artifactID, func(a *artifact.Artifact) error {
		return a.UpdateTitleMention(mention)
	})
}

// UpdateSummaryCandidate 更新摘要候选，nil 表示清除。
func (s *ArtifactService) UpdateSummaryCandidate(ctx context.Context, artifactID string, candidate *extraction.SummaryCandidate) error {
	return s.execute(ctx, artifactID, func(a *artifact.Artifact) error {
		return a.UpdateSummaryCandidate(candidate)
	})
}

// UpdateTags 替换制品标签集合。
func (s *ArtifactService) UpdateTags(ctx context.Context, req UpdateArtifactTagsRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	return s.execute(ctx, req.ArtifactID, func(a *artifact.Artifact) error {
		return a.UpdateTags(req.Tags)
	})
}

// Delete 删除单个制品聚合，不级联页面；级联删除见 DeletionService。
func (s *ArtifactService) Delete(ctx context.Context, artifactID string) error {
	return s.execute(ctx, artifactID, func(a *artifact.Artifact) error {
		return a.Delete()
	})
}

// Get 从读模型查询制品文档。
func (s *ArtifactService) Get(ctx context.Context, artifactID string) (*readmodel.ArtifactDocument, error) {
	if artifactID == "" {
		return nil, fmt.Errorf("%w: artifact id is required", eventsourcing.ErrValidation)
	}

	return s.reads.Get(ctx, artifactID)
}

// execute 加载-变更-保存。
func (s *ArtifactService) execute(ctx context.Context, artifactID string, mutate func(*artifact.Artifact) error) error {
	a, err := s.repo.Load(ctx, artifactID)
	if err != nil {
		return err
	}

	if err := mutate(a); err != nil {
		return err
	}

	return s.repo.Save(ctx, a)
}

func (s *ArtifactService) notify(ctx context.Context, event eventsourcing.DomainEvent) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish integration notification",
			"event_type", event.EventType(),
			"aggregate_id", event.AggregateID(),
			"error", err)
	}
}
