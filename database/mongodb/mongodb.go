// Package mongodb 管理读模型存储的 MongoDB 连接，
// 通过 CommandMonitor 为每次命令采集延迟与成功率指标。
package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	mongoOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_mongo_ops_total",
			Help: "The total number of mongo operations",
		},
		[]string{"command", "status"},
	)
	mongoDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docstore_mongo_duration_seconds",
			Help:    "The duration of mongo operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
)

func init() {
	prometheus.MustRegister(mongoOps, mongoDuration)
}

// Config MongoDB 连接参数。
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MinPoolSize    uint64
	MaxPoolSize    uint64
}

// NewMongoClient 建立连接并验证主节点可达，返回客户端与清理闭包。
func NewMongoClient(conf *Config) (*mongo.Client, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.ConnectTimeout)
	defer cancel()

	monitor := &event.CommandMonitor{
		Succeeded: func(_ context.Context, evt *event.CommandSucceededEvent) {
			mongoOps.WithLabelValues(evt.CommandName, "success").Inc()
			mongoDuration.WithLabelValues(evt.CommandName).Observe(evt.Duration.Seconds())
		},
		Failed: func(_ context.Context, evt *event.CommandFailedEvent) {
			mongoOps.WithLabelValues(evt.CommandName, "failed").Inc()
			mongoDuration.WithLabelValues(evt.CommandName).Observe(evt.Duration.Seconds())
		},
	}

	clientOpts := options.Client().
		ApplyURI(conf.URI).
		SetMinPoolSize(conf.MinPoolSize).
		SetMaxPoolSize(conf.MaxPoolSize).
		SetMonitor(monitor)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	slog.Info("mongodb client initialized successfully", "db", conf.Database)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			slog.Error("failed to disconnect from mongodb", "error", err)
		}
	}

	return client, cleanup, nil
}
