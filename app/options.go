package app

import (
	"time"

	"github.com/wyfcoding/docstore/server"
)

// Option 进程容器的可选配置。
type Option func(*options)

type options struct {
	servers         []server.Server
	cleanups        []func()
	shutdownTimeout time.Duration
}

// WithServer 注册一个或多个随进程启停的服务器（事件消费者、运维端口等）。
func WithServer(servers ...server.Server) Option {
	return func(o *options) {
		o.servers = append(o.servers, servers...)
	}
}

// WithCleanup 注册关停时执行的清理函数，在所有服务器停止后调用。
func WithCleanup(cleanup func()) Option {
	return func(o *options) {
		o.cleanups = append(o.cleanups, cleanup)
	}
}

// WithShutdownTimeout 覆盖优雅关停预算。
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.shutdownTimeout = timeout
		}
	}
}
