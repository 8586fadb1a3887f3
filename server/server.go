// Package server 定义进程内长驻服务的启停契约，并提供运维端点服务器。
// 事件流消费者与运维端口都实现 Server，由 app 容器统一启停。
package server

import "context"

// Server 长驻服务契约。Start 阻塞运行直到 ctx 取消或发生致命错误；
// Stop 优雅停止，等待在途工作完成，超时由调用方通过 ctx 控制。
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
