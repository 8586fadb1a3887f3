// Package projection 把全局事件流折叠进查询侧读模型。
// 引擎按事件类型路由到投影处理函数，并统一处理幂等与完整性判定：
// 重复投递跳过，跳号或文档缺失升级为完整性故障交由上游停机。
package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wyfcoding/docstore/eventsourcing"
	"github.com/wyfcoding/docstore/readmodel"
)

// ErrIntegrity 表示读模型与事件流出现不可自动恢复的偏差。
var ErrIntegrity = errors.New("projection integrity violated")

// Handler 处理单个领域事件并更新读模型。
type Handler func(ctx context.Context, event eventsourcing.DomainEvent) error

// Projector 声明自身订阅的事件类型及对应处理函数。
type Projector interface {
	Handlers() map[string]Handler
}

// Engine 按事件类型路由领域事件的投影引擎。
type Engine struct {
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewEngine 聚合多个投影器的处理函数表，logger 为 nil 时使用默认 logger。
func NewEngine(logger *slog.Logger, projectors ...Projector) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	handlers := make(map[string]Handler)
	for _, projector := range projectors {
		for eventType, handler := range projector.Handlers() {
			handlers[eventType] = handler
		}
	}

	return &Engine{handlers: handlers, logger: logger}
}

// ProcessEvent 把单个事件应用到读模型，签名即 subscription.Sink 契约。
// 未注册的事件类型与重复投递返回 nil，跳号与文档缺失包装 ErrIntegrity，
// 其余错误视为可重投的基础设施故障。
func (e *Engine) ProcessEvent(ctx context.Context, stored eventsourcing.StoredEvent) error {
	event := stored.Event

	handler, ok := e.handlers[event.EventType()]
	if !ok {
		e.logger.DebugContext(ctx, "no projection handler registered, skipping event",
			"event_type", event.EventType(),
			"aggregate_id", event.AggregateID())
		projectedEvents.WithLabelValues(event.EventType(), outcomeUnregistered).Inc()

		return nil
	}

	err := handler(ctx, event)
	switch {
	case err == nil:
		projectedEvents.WithLabelValues(event.EventType(), outcomeApplied).Inc()

		return nil
	case errors.Is(err, readmodel.ErrAlreadyApplied):
		e.logger.DebugContext(ctx, "event already applied to read model, skipping",
			"event_type", event.EventType(),
			"aggregate_id", event.AggregateID(),
			"version", event.Version())
		projectedEvents.WithLabelValues(event.EventType(), outcomeDuplicate).Inc()

		return nil
	case errors.Is(err, readmodel.ErrVersionGap), errors.Is(err, readmodel.ErrNotFound):
		projectedEvents.WithLabelValues(event.EventType(), outcomeIntegrity).Inc()

		return fmt.Errorf("%w: event %s for aggregate %s at version %d (position %d): %v",
			ErrIntegrity, event.EventType(), event.AggregateID(), event.Version(), stored.Position, err)
	default:
		projectedEvents.WithLabelValues(event.EventType(), outcomeError).Inc()

		return fmt.Errorf("failed to project event %s for aggregate %s: %w",
			event.EventType(), event.AggregateID(), err)
	}
}
