// Package redis 管理 Redis 连接，消费组的领导选举租约存放于此。
// 通过 Hook 为每条命令采集延迟与成功率指标。
package redis

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wyfcoding/docstore/config"
	"github.com/wyfcoding/docstore/logging"
)

var (
	redisOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_redis_ops_total",
			Help: "The total number of redis operations",
		},
		[]string{"addr", "command", "status"},
	)
	redisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docstore_redis_duration_seconds",
			Help:    "The duration of redis operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"addr", "command"},
	)
)

func init() {
	prometheus.MustRegister(redisOps, redisDuration)
}

type metricsHook struct {
	addr string
}

func (h *metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)

		// redis.Nil 是未命中而非故障。
		status := "success"
		if err != nil && err != redis.Nil {
			status = "error"
		}

		redisOps.WithLabelValues(h.addr, cmd.Name(), status).Inc()
		redisDuration.WithLabelValues(h.addr, cmd.Name()).Observe(time.Since(start).Seconds())

		return err
	}
}

func (h *metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)

		status := "success"
		if err != nil && err != redis.Nil {
			status = "error"
		}

		redisOps.WithLabelValues(h.addr, "pipeline", status).Inc()
		redisDuration.WithLabelValues(h.addr, "pipeline").Observe(time.Since(start).Seconds())

		return err
	}
}

// NewClient 建立 Redis 连接并验证可达性，返回客户端与清理函数。
// 根据 Addrs 与 MasterName 自动适配单机、哨兵与集群模式。
func NewClient(cfg *config.RedisConfig, logger *logging.Logger) (redis.UniversalClient, func(), error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		MasterName:   cfg.MasterName,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	client.AddHook(&metricsHook{addr: strings.Join(cfg.Addrs, ",")})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis client initialized", "addrs", cfg.Addrs)

	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close redis client", "error", err)
		}
	}

	return client, cleanup, nil
}
