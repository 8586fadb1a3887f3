package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wyfcoding/docstore/artifact"
	"github.com/wyfcoding/docstore/eventsourcing"
	"github.com/wyfcoding/docstore/page"
	"github.com/wyfcoding/docstore/workflow"
)

// Starter 工作流启动契约，由 TemporalGateway 满足。
type Starter interface {
	Start(ctx context.Context, name workflow.Name, aggregateID string, arg any) error
}

// PageTrigger 页面工作流触发用例：实现方先把页面状态写为 in-progress
// 再请求启动，保证读模型先于工作流执行反映排队事实。
type PageTrigger interface {
	TriggerEmbedding(ctx context.Context, pageID string) error
	TriggerPageSummarization(ctx context.Context, pageID string) error
}

// Dispatcher 管道派发器，实现 subscription.Sink。
// 规则失败一律包装 ErrDispatchFailed：派发是尽力而为的旁路，
// 不合格的事件不应阻塞整条流水线。
type Dispatcher struct {
	starter  Starter
	triggers PageTrigger
	logger   *slog.Logger
}

// DispatcherOption 派发器可选配置。
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger 设置日志器。
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher 创建管道派发器。
func NewDispatcher(starter Starter, triggers PageTrigger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		starter:  starter,
		triggers: triggers,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// ProcessEvent 按派发规则把事件翻译成工作流启动，签名即 subscription.Sink 契约。
// 不匹配任何规则的事件原样放行。
func (d *Dispatcher) ProcessEvent(ctx context.Context, stored eventsourcing.StoredEvent) error {
	switch e := stored.Event.(type) {
	case *page.Created:
		return d.starter.Start(ctx, workflow.CompoundExtraction, e.AggregateID(), workflow.CompoundExtractionInput{
			PageID:     e.AggregateID(),
			ArtifactID: e.ArtifactID,
		})
	case *artifact.Created:
		return d.starter.Start(ctx, workflow.ArtifactSample, e.AggregateID(), workflow.ArtifactSampleInput{
			ArtifactID:      e.AggregateID(),
			StorageLocation: e.StorageLocation,
		})
	case *page.TextMentionUpdated:
		// 清除正文不触发向量计算。
		if e.TextMention == nil {
			return nil
		}

		return d.trigger(ctx, workflow.Embedding, e.AggregateID(), d.triggers.TriggerEmbedding)
	case *page.TextEmbeddingGenerated:
		return d.trigger(ctx, workflow.PageSummarization, e.AggregateID(), d.triggers.TriggerPageSummarization)
	case *page.CompoundMentionsUpdated:
		return d.starter.Start(ctx, workflow.SmilesEmbedding, e.AggregateID(), workflow.SmilesEmbeddingInput{
			PageID: e.AggregateID(),
		})
	default:
		return nil
	}
}

func (d *Dispatcher) trigger(ctx context.Context, name workflow.Name, pageID string, fn func(context.Context, string) error) error {
	if err := fn(ctx, pageID); err != nil {
		if errors.Is(err, ErrDispatchFailed) {
			return err
		}

		return fmt.Errorf("%w: trigger %s for page %s: %v", ErrDispatchFailed, name, pageID, err)
	}

	d.logger.DebugContext(ctx, "workflow trigger completed", "workflow", name, "page_id", pageID)

	return nil
}
