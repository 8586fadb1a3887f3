// Package service 组合聚合仓储、读模型与集成发布器，对外提供命令与查询用例。
// 命令用例走事件存储（写侧），查询用例走读模型（查侧），两侧最终一致。
package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/wyfcoding/docstore/eventsourcing"
	"github.com/wyfcoding/docstore/workflow"
)

// validate 进程内共享的请求校验器，Struct 调用并发安全。
var validate = validator.New()

// WorkflowStarter 工作流启动器的窄契约，由 dispatch.TemporalGateway 满足。
type WorkflowStarter interface {
	Start(ctx context.Context, name workflow.Name, aggregateID string, arg any) error
}

// validateRequest 校验请求 DTO，失败包装 ErrValidation。
func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", eventsourcing.ErrValidation, err)
	}

	return nil
}
