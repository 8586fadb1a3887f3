// 工作流派发 worker：消费全局事件流，按派发规则启动 Temporal 工作流。
package main

import (
	"context"
	"os"

	"github.com/wyfcoding/docstore/app"
	"github.com/wyfcoding/docstore/bootstrap"
	"github.com/wyfcoding/docstore/config"
)

const serviceName = "docstore-pipelineworker"

// version 由构建时 -ldflags 注入。
var version = "dev"

func main() {
	booter := bootstrap.New(serviceName, version)

	var cfg config.Config
	if err := booter.Initialize(&cfg); err != nil {
		os.Exit(1)
	}

	stopTracing := booter.SetupTracing(cfg.Tracing)
	defer stopTracing()

	container, err := bootstrap.NewContainer(&cfg, booter.Logger)
	if err != nil {
		booter.Logger.Error("failed to assemble container", "error", err)
		os.Exit(1)
	}

	consumer, err := container.PipelineConsumer(context.Background())
	if err != nil {
		booter.Logger.Error("failed to build pipeline consumer", "error", err)
		container.Cleanup(context.Background())
		os.Exit(1)
	}

	application := app.New(serviceName, booter.Logger.Logger,
		app.WithServer(consumer, container.OpsServer()),
		app.WithCleanup(func() {
			container.Cleanup(context.Background())
		}),
	)

	if err := application.Run(); err != nil {
		booter.Logger.Error("application exited with error", "error", err)
		os.Exit(1)
	}
}
