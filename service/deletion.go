package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/wyfcoding/docstore/artifact"
	"github.com/wyfcoding/docstore/eventsourcing"
	"github.com/wyfcoding/docstore/page"
	"github.com/wyfcoding/docstore/retry"
)

// DeletionService 跨聚合的级联删除用例。
type DeletionService struct {
	artifacts eventsourcing.AggregateRepository[*artifact.Artifact]
	pages     eventsourcing.AggregateRepository[*page.Page]
	retryCfg  retry.Config
	logger    *slog.Logger
}

// NewDeletionService 创建级联删除服务。
func NewDeletionService(
	artifacts eventsourcing.AggregateRepository[*artifact.Artifact],
	pages eventsourcing.AggregateRepository[*page.Page],
	logger *slog.Logger,
) *DeletionService {
	if logger == nil {
		logger = slog.Default()
	}

	return &DeletionService{
		artifacts: artifacts,
		pages:     pages,
		retryCfg:  retry.DefaultRetryConfig(),
		logger:    logger,
	}
}

// DeleteArtifact 删除制品及其全部页面。
// 容器删除是单次原子追加；每个页面独立删除，版本冲突时重载重试，
// 已删除页面视为成功。残余失败汇总返回，不回滚容器也不中断其他页面，
// 整个操作可安全重跑。
func (s *DeletionService) DeleteArtifact(ctx context.Context, artifactID string) error {
	container, err := s.artifacts.Load(ctx, artifactID)
	if err != nil {
		return err
	}

	pageIDs := slices.Clone(container.Pages)

	if err := container.Delete(); err != nil {
		return err
	}
	if err := s.artifacts.Save(ctx, container); err != nil {
		return err
	}

	var failures []error
	for _, pageID := range pageIDs {
		if err := s.deletePage(ctx, pageID); err != nil {
			failures = append(failures, fmt.Errorf("page %s: %w", pageID, err))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("artifact %s deleted but %d of %d pages failed: %w",
			artifactID, len(failures), len(pageIDs), errors.Join(failures...))
	}

	s.logger.InfoContext(ctx, "artifact deleted with pages",
		"artifact_id", artifactID, "pages", len(pageIDs))

	return nil
}

func (s *DeletionService) deletePage(ctx context.Context, pageID string) error {
	err := retry.RetryIf(ctx, func() error {
		p, err := s.pages.Load(ctx, pageID)
		if err != nil {
			return err
		}

		if err := p.Delete(); err != nil {
			return err
		}

		return s.pages.Save(ctx, p)
	}, func(err error) bool {
		return errors.Is(err, eventsourcing.ErrVersionConflict)
	}, s.retryCfg)
	if err != nil {
		// 容器记录了页面但事件流中不存在，视为已清理。
		if errors.Is(err, eventsourcing.ErrAggregateNotFound) {
			return nil
		}

		return err
	}

	return nil
}
