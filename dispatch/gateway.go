// Package dispatch 把全局事件流翻译成工作流引擎的启动指令。
// 工作流 ID 取幂等键，引擎保证同一 ID 至多一个存活执行；
// 启动失败在有限重试后包装 ErrDispatchFailed，由消费者记数跳过而非无限重投。
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/wyfcoding/docstore/retry"
	"github.com/wyfcoding/docstore/workflow"
)

// ErrDispatchFailed 工作流启动在重试耗尽后仍失败。
var ErrDispatchFailed = errors.New("workflow dispatch failed")

// WorkflowClient 工作流引擎客户端的窄接口，go.temporal.io/sdk/client.Client 天然满足。
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow any, args ...any) (client.WorkflowRun, error)
}

// TemporalGateway 基于 Temporal 的工作流启动网关。
type TemporalGateway struct {
	client    WorkflowClient
	taskQueue string
	retryCfg  retry.Config
	logger    *slog.Logger
}

// GatewayOption 网关可选配置。
type GatewayOption func(*TemporalGateway)

// WithGatewayRetryConfig 设置启动瞬态失败的重试策略。
func WithGatewayRetryConfig(cfg retry.Config) GatewayOption {
	return func(g *TemporalGateway) { g.retryCfg = cfg }
}

// WithGatewayLogger 设置日志器。
func WithGatewayLogger(logger *slog.Logger) GatewayOption {
	return func(g *TemporalGateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewTemporalGateway 创建工作流启动网关。
func NewTemporalGateway(workflowClient WorkflowClient, taskQueue string, opts ...GatewayOption) *TemporalGateway {
	g := &TemporalGateway{
		client:    workflowClient,
		taskQueue: taskQueue,
		retryCfg:  retry.DefaultRetryConfig(),
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Start 以 fire-and-forget 方式启动工作流。
// 同一聚合的重复启动被引擎以 WorkflowExecutionAlreadyStarted 拒绝，视为成功。
func (g *TemporalGateway) Start(ctx context.Context, name workflow.Name, aggregateID string, arg any) error {
	workflowID := workflow.IdempotencyKey(name, aggregateID)

	options := client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: g.taskQueue,

		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}

	var duplicate bool

	err := retry.RetryIf(ctx, func() error {
		_, execErr := g.client.ExecuteWorkflow(ctx, options, string(name), arg)
		if execErr != nil {
			var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
			if errors.As(execErr, &alreadyStarted) {
				duplicate = true

				return nil
			}

			return execErr
		}

		return nil
	}, func(err error) bool {
		var invalid *serviceerror.InvalidArgument

		return !errors.As(err, &invalid)
	}, g.retryCfg)
	if err != nil {
		dispatchedWorkflows.WithLabelValues(string(name), outcomeFailed).Inc()

		return fmt.Errorf("%w: workflow %s for aggregate %s: %v", ErrDispatchFailed, name, aggregateID, err)
	}

	if duplicate {
		g.logger.DebugContext(ctx, "workflow already started, treating as success",
			"workflow", name, "workflow_id", workflowID)
		dispatchedWorkflows.WithLabelValues(string(name), outcomeDuplicate).Inc()

		return nil
	}

	g.logger.InfoContext(ctx, "workflow dispatched",
		"workflow", name, "workflow_id", workflowID, "task_queue", g.taskQueue)
	dispatchedWorkflows.WithLabelValues(string(name), outcomeStarted).Inc()

	return nil
}
