// Package messagequeue 定义集成通知发布契约。
package messagequeue

import (
	"context"

	"github.com/wyfcoding/docstore/eventsourcing"
)

// EventPublisher 把领域事件以通知形式发布给外部系统。
// 发布是尽力而为的集成旁路：失败由调用方记录日志，不影响命令结果，
// 一致性由事件存储的全局流保证。
type EventPublisher interface {
	Publish(ctx context.Context, event eventsourcing.DomainEvent) error
	Close() error
}

// NopPublisher 空实现，未配置消息队列时使用。
type NopPublisher struct{}

// Publish 实现 EventPublisher。
func (NopPublisher) Publish(context.Context, eventsourcing.DomainEvent) error { return nil }

// Close 实现 EventPublisher。
func (NopPublisher) Close() error { return nil }
