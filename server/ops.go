package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// OpsServer 封装了标准的 `http.Server`，用于暴露指标与健康检查等运维端点，
// 并提供了优雅的启动和关闭功能。
type OpsServer struct {
	server *http.Server
	addr   string
	logger *slog.Logger
}

// NewOpsServer 创建一个新的运维端点服务器实例。
// handlers 是路径到处理器的映射，例如 {"/metrics": m.Handler(), "/healthz": health.Handler(...)}。
func NewOpsServer(addr string, handlers map[string]http.Handler, logger *slog.Logger) *OpsServer {
	mux := http.NewServeMux()
	for path, handler := range handlers {
		mux.Handle(path, handler)
	}

	return &OpsServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		addr:   addr,
		logger: logger,
	}
}

// Start 启动运维端点服务器。
// 这是一个阻塞操作，它会监听上下文的取消事件以触发优雅关闭。
func (s *OpsServer) Start(ctx context.Context) error {
	s.logger.Info("ops server starting", "addr", s.addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("ops server stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Stop 优雅地停止运维端点服务器。
func (s *OpsServer) Stop(ctx context.Context) error {
	s.logger.Info("ops server stopping gracefully")
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

var _ Server = (*OpsServer)(nil)
