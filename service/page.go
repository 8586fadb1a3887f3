package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wyfcoding/docstore/artifact"
	"github.com/wyfcoding/docstore/eventsourcing"
	"github.com/wyfcoding/docstore/extraction"
	"github.com/wyfcoding/docstore/page"
	"github.com/wyfcoding/docstore/readmodel"
	"github.com/wyfcoding/docstore/retry"
	"github.com/wyfcoding/docstore/workflow"
)

// CreatePageRequest 创建页面请求。
type CreatePageRequest struct {
	Name       string `json:"name"        validate:"required"`
	ArtifactID string `json:"artifact_id" validate:"required"`
	Index      int    `json:"index"       validate:"min=0"`
}

// PageService 页面命令、查询与工作流触发用例。
type PageService struct {
	pages     eventsourcing.AggregateRepository[*page.Page]
	artifacts eventsourcing.AggregateRepository[*artifact.Artifact]
	reads     readmodel.PageStore
	starter   WorkflowStarter
	retryCfg  retry.Config
	logger    *slog.Logger
}

// NewPageService 创建页面服务。starter 为 nil 时触发用例只落状态不启动工作流。
func NewPageService(
	pages eventsourcing.AggregateRepository[*page.Page],
	artifacts eventsourcing.AggregateRepository[*artifact.Artifact],
	reads readmodel.PageStore,
	starter WorkflowStarter,
	logger *slog.Logger,
) *PageService {
	if logger == nil {
		logger = slog.Default()
	}

	return &PageService{
		pages:     pages,
		artifacts: artifacts,
		reads:     reads,
		starter:   starter,
		retryCfg:  retry.DefaultRetryConfig(),
		logger:    logger,
	}
}

// Create 创建页面并登记到所属制品。
// 页面与容器是两个聚合、两次提交：页面先落库，随后的登记在版本冲突时
// 重载重试；登记最终失败返回错误，但页面事件已持久化。
func (s *PageService) Create(ctx context.Context, req CreatePageRequest) (*page.Page, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	container, err := s.artifacts.Load(ctx, req.ArtifactID)
	if err != nil {
		return nil, err
	}
	if container.IsDeleted {
		return nil, fmt.Errorf("%w: cannot create page under deleted artifact %s",
			eventsourcing.ErrInvalidOperation, req.ArtifactID)
	}

	p, err := page.Create(req.Name, req.ArtifactID, req.Index)
	if err != nil {
		return nil, err
	}

	if err := s.pages.Save(ctx, p); err != nil {
		return nil, err
	}

	if err := s.linkPage(ctx, req.ArtifactID, p.ID()); err != nil {
		s.logger.ErrorContext(ctx, "page created but container link failed",
			"page_id", p.ID(), "artifact_id", req.ArtifactID, "error", err)

		return nil, fmt.Errorf("page %s created but failed to link to artifact %s: %w",
			p.ID(), req.ArtifactID, err)
	}

	s.logger.InfoContext(ctx, "page created",
		"page_id", p.ID(), "artifact_id", req.ArtifactID, "index", req.Index)

	return p, nil
}

// UpdateCompoundMentions 整体替换页面的化合物抽取结果。
func (s *PageService) UpdateCompoundMentions(ctx context.Context, pageID string, mentions []extraction.CompoundMention) error {
	return s.execute(ctx, pageID, func(p *page.Page) error {
		return p.UpdateCompoundMentions(mentions)
	})
}

// UpdateTagMentions 整体替换页面的标签抽取结果。
func (s *PageService) UpdateTagMentions(ctx context.Context, pageID string, mentions []extraction.TagMention) error {
	return s.execute(ctx, pageID, func(p *page.Page) error {
		return p.UpdateTagMentions(mentions)
	})
}

// UpdateTextMention 更新页面正文抽取结果，nil 表示清除。
func (s *PageService) UpdateTextMention(ctx context.Context, pageID string, mention *extraction.TextMention) error {
	return s.execute(ctx, pageID, func(p *page.Page) error {
		return p.UpdateTextMention(mention)
	})
}

// UpdateSummaryCandidate 更新页面摘要候选，nil 表示清除。
func (s *PageService) UpdateSummaryCandidate(ctx context.Context, pageID string, candidate *extraction.SummaryCandidate) error {
	return s.execute(ctx, pageID, func(p *page.Page) error {
		return p.UpdateSummaryCandidate(candidate)
	})
}

// RecordTextEmbedding 登记文本向量元数据，向量本体由工作流活动写入向量库。
func (s *PageService) RecordTextEmbedding(ctx context.Context, pageID string, metadata extraction.EmbeddingMetadata) error {
	return s.execute(ctx, pageID, func(p *page.Page) error {
		return p.RecordTextEmbedding(metadata)
	})
}

// RecordSmilesEmbedding 登记 SMILES 向量元数据。
func (s *PageService) RecordSmilesEmbedding(ctx context.Context, pageID string, metadata extraction.EmbeddingMetadata) error {
	return s.execute(ctx, pageID, func(p *page.Page) error {
		return p.RecordSmilesEmbedding(metadata)
	})
}

// UpdateWorkflowStatus 更新页面上某个工作流的运行状态。
func (s *PageService) UpdateWorkflowStatus(ctx context.Context, pageID string, name workflow.Name, status workflow.Status) error {
	return s.execute(ctx, pageID, func(p *page.Page) error {
		return p.UpdateWorkflowStatus(name, status)
	})
}

// Delete 删除单个页面聚合。
func (s *PageService) Delete(ctx context.Context, pageID string) error {
	return s.execute(ctx, pageID, func(p *page.Page) error {
		return p.Delete()
	})
}

// Get 从读模型查询页面文档。
func (s *PageService) Get(ctx context.Context, pageID string) (*readmodel.PageDocument, error) {
	if pageID == "" {
		return nil, fmt.Errorf("%w: page id is required", eventsourcing.ErrValidation)
	}

	return s.reads.Get(ctx, pageID)
}

// ListByArtifact 按页码序列出制品下的页面文档。
func (s *PageService) ListByArtifact(ctx context.Context, artifactID string) ([]*readmodel.PageDocument, error) {
	if artifactID == "" {
		return nil, fmt.Errorf("%w: artifact id is required", eventsourcing.ErrValidation)
	}

	return s.reads.ListByArtifact(ctx, artifactID)
}

// TriggerEmbedding 把页面的向量工作流置为进行中并请求启动。
// 实现 dispatch.PageTrigger。
func (s *PageService) TriggerEmbedding(ctx context.Context, pageID string) error {
	return s.triggerWorkflow(ctx, pageID, workflow.Embedding, workflow.EmbeddingInput{PageID: pageID})
}

// TriggerPageSummarization 把页面的摘要工作流置为进行中并请求启动。
// 实现 dispatch.PageTrigger。
func (s *PageService) TriggerPageSummarization(ctx context.Context, pageID string) error {
	return s.triggerWorkflow(ctx, pageID, workflow.PageSummarization, workflow.PageSummarizationInput{PageID: pageID})
}

// triggerWorkflow 先落进行中状态再请求启动：读模型先于工作流执行反映
// 排队事实，重复启动由幂等键在引擎侧去重。
func (s *PageService) triggerWorkflow(ctx context.Context, pageID string, name workflow.Name, arg any) error {
	workflowID := workflow.IdempotencyKey(name, pageID)

	err := retry.RetryIf(ctx, func() error {
		p, err := s.pages.Load(ctx, pageID)
		if err != nil {
			return err
		}

		if err := p.UpdateWorkflowStatus(name, workflow.NewInProgress(workflowID, "queued for execution")); err != nil {
			return err
		}

		return s.pages.Save(ctx, p)
	}, func(err error) bool {
		return errors.Is(err, eventsourcing.ErrVersionConflict)
	}, s.retryCfg)
	if err != nil {
		return err
	}

	if s.starter == nil {
		return nil
	}

	return s.starter.Start(ctx, name, pageID, arg)
}

// execute 加载-变更-保存。
func (s *PageService) execute(ctx context.Context, pageID string, mutate func(*page.Page) error) error {
	p, err := s.pages.Load(ctx, pageID)
	if err != nil {
		return err
	}

	if err := mutate(p); err != nil {
		return err
	}

	return s.pages.Save(ctx, p)
}

// linkPage 把新页面登记到容器，版本冲突时重载重试。
func (s *PageService) linkPage(ctx context.Context, artifactID, pageID string) error {
	return retry.RetryIf(ctx, func() error {
		container, err := s.artifacts.Load(ctx, artifactID)
		if err != nil {
			return err
		}

		if err := container.AddPages([]string{pageID}); err != nil {
			return err
		}

		return s.artifacts.Save(ctx, container)
	}, func(err error) bool {
		return errors.Is(err, eventsourcing.ErrVersionConflict)
	}, s.retryCfg)
}
