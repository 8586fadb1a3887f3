// Package bootstrap 负责进程启动时的配置加载、日志重建与基础设施装配.
package bootstrap

import (
	"context"
	"flag"
	"log/slog"

	"github.com/wyfcoding/docstore/config"
	"github.com/wyfcoding/docstore/logging"
	"github.com/wyfcoding/docstore/tracing"
)

// Bootstrapper 处理通用基础设施的初始化
type Bootstrapper struct {
	ServiceName string
	Version     string
	Logger      *logging.Logger
}

// New 创建一个新的引导器实例
func New(serviceName, version string) *Bootstrapper {
	return &Bootstrapper{
		ServiceName: serviceName,
		Version:     version,
	}
}

// Initialize 解析命令行标志、加载配置文件，并初始化日志系统。
// 它接收一个 cfg 指针，用于将加载的配置反序列化到该结构体中。
// 当传入 *config.Config 时，按其日志段重建 Logger 并打印脱敏配置。
func (b *Bootstrapper) Initialize(cfg any) error {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/config.toml", "path to config file")
	flag.Parse()

	// 1. 临时初始化 Logger（用于记录配置加载过程中的潜在错误）。
	logging.InitLogger(b.ServiceName, "bootstrap")
	b.Logger = logging.Default()

	// 2. 加载配置文件：读取 TOML 文件并映射到传入的 cfg 结构体中。
	if err := config.Load(configPath, cfg); err != nil {
		b.Logger.Error("failed to load config", "error", err)
		return err
	}

	// 3. 使用配置重新初始化 Logger：级别、文件切割与远程写入均来自配置。
	if c, ok := cfg.(*config.Config); ok {
		b.Logger = logging.NewFromConfig(logging.Config{
			Service:    b.ServiceName,
			Module:     "main",
			Level:      c.Log.Level,
			File:       c.Log.File,
			MaxSize:    c.Log.MaxSize,
			MaxBackups: c.Log.MaxBackups,
			MaxAge:     c.Log.MaxAge,
			Compress:   c.Log.Compress,
			Remote: logging.RemoteConfig{
				Enabled:       c.Log.Remote.Enabled,
				Endpoint:      c.Log.Remote.Endpoint,
				AuthToken:     c.Log.Remote.AuthToken,
				Timeout:       c.Log.Remote.Timeout,
				BatchSize:     c.Log.Remote.BatchSize,
				BufferSize:    c.Log.Remote.BufferSize,
				FlushInterval: c.Log.Remote.FlushInterval,
				DropOnFull:    c.Log.Remote.DropOnFull,
			},
		})
		slog.SetDefault(b.Logger.Logger)
		config.PrintWithMask(c)
	}

	return nil
}

// SetupTracing 初始化 OpenTelemetry 追踪器。未启用时返回空关闭函数。
func (b *Bootstrapper) SetupTracing(cfg config.TracingConfig) func() {
	if !cfg.Enabled {
		return func() {}
	}

	shutdown, err := tracing.InitTracer(cfg)
	if err != nil {
		b.Logger.Error("failed to init tracer", "error", err)
		return func() {}
	}
	return func() {
		if err := shutdown(context.Background()); err != nil {
			b.Logger.Error("failed to shutdown tracer", "error", err)
		}
	}
}
