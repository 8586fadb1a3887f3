// 生成摘要:
// 1) 读模型 Mongo 客户端的热替换封装：配置变更时原子换入新客户端并关闭旧连接。
// 2) 替换成功后执行已注册的 onSwap 回调，读模型索引在新库上重建。
// 假设:
// 1) 调用方通过 DB() 按操作解析数据库句柄，不长期持有 *mongo.Database。
package mongodb

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wyfcoding/docstore/config"
	"github.com/wyfcoding/docstore/logging"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	defaultMongoConnectTimeout = 5 * time.Second
	defaultMongoMaxPoolSize    = 100
	swapCallbackTimeout        = 30 * time.Second
)

type dynamicState struct {
	client   *mongo.Client
	cleanup  func()
	database string
}

// DynamicClient 持有当前 MongoDB 客户端并支持配置热替换。
// 替换对进行中的操作不可见：旧客户端在新状态生效后才关闭。
type DynamicClient struct {
	logger *logging.Logger
	mu     sync.Mutex
	state  atomic.Value
}

// NewDynamicClient 按模块配置建立首个客户端。
func NewDynamicClient(cfg Config, logger *logging.Logger) (*DynamicClient, error) {
	client, cleanup, err := NewMongoClient(&cfg)
	if err != nil {
		return nil, err
	}
	d := &DynamicClient{logger: logger}
	d.state.Store(&dynamicState{
		client:   client,
		cleanup:  cleanup,
		database: cfg.Database,
	})
	return d, nil
}

// NewDynamicClientFromConfig 使用统一配置段建立客户端。
func NewDynamicClientFromConfig(cfg config.MongoDBConfig, logger *logging.Logger) (*DynamicClient, error) {
	return NewDynamicClient(buildMongoConfig(cfg), logger)
}

// UpdateConfig 建立新客户端并原子换入，随后关闭旧客户端。
// 新客户端建立失败时保持现状。
func (d *DynamicClient) UpdateConfig(cfg Config) error {
	if d == nil {
		return errors.New("dynamic mongo client is nil")
	}
	client, cleanup, err := NewMongoClient(&cfg)
	if err != nil {
		return err
	}

	d.mu.Lock()
	old := d.load()
	d.state.Store(&dynamicState{
		client:   client,
		cleanup:  cleanup,
		database: cfg.Database,
	})
	d.mu.Unlock()

	if old != nil && old.cleanup != nil {
		old.cleanup()
	}

	d.log().Info("mongodb client updated", "db", cfg.Database)

	return nil
}

// DB 返回当前客户端指向的数据库句柄。按操作调用，不得缓存：
// 热替换后缓存的句柄指向已关闭的客户端。
func (d *DynamicClient) DB() *mongo.Database {
	state := d.load()
	if state == nil {
		return nil
	}
	return state.client.Database(state.database)
}

// Client 返回当前 MongoDB 客户端实例。
func (d *DynamicClient) Client() *mongo.Client {
	state := d.load()
	if state == nil {
		return nil
	}
	return state.client
}

// Close 换出并关闭当前客户端。进程停止时由 lifecycle 调用。
func (d *DynamicClient) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	old := d.load()
	d.state.Store((*dynamicState)(nil))
	d.mu.Unlock()

	if old != nil && old.cleanup != nil {
		old.cleanup()
	}

	return nil
}

// RegisterReloadHook 把客户端替换挂到配置热更新上。替换成功后依次
// 执行 onSwap 回调（带超时上下文），用于在新库上重建索引等初始化。
// 回调失败只告警，客户端保持已替换状态。
func RegisterReloadHook(client *DynamicClient, base Config, onSwap ...func(ctx context.Context) error) {
	if client == nil {
		return
	}
	config.RegisterReloadHook(func(updated *config.Config) {
		if updated == nil {
			return
		}
		next := base
		next.URI = updated.Data.MongoDB.URI
		next.Database = updated.Data.MongoDB.Database
		if next.ConnectTimeout <= 0 {
			next.ConnectTimeout = defaultMongoConnectTimeout
		}
		if next.MaxPoolSize == 0 {
			next.MaxPoolSize = defaultMongoMaxPoolSize
		}
		if err := client.UpdateConfig(next); err != nil {
			client.log().Error("mongodb client reload failed", "error", err)
			return
		}

		for _, callback := range onSwap {
			ctx, cancel := context.WithTimeout(context.Background(), swapCallbackTimeout)
			if err := callback(ctx); err != nil {
				client.log().Error("mongodb post-swap callback failed", "error", err)
			}
			cancel()
		}
	})
}

func (d *DynamicClient) log() *logging.Logger {
	if d.logger != nil {
		return d.logger
	}
	return logging.Default()
}

func (d *DynamicClient) load() *dynamicState {
	if d == nil {
		return nil
	}
	value := d.state.Load()
	if value == nil {
		return nil
	}
	return value.(*dynamicState)
}

func buildMongoConfig(cfg config.MongoDBConfig) Config {
	return Config{
		URI:            cfg.URI,
		Database:       cfg.Database,
		ConnectTimeout: defaultMongoConnectTimeout,
		MinPoolSize:    0,
		MaxPoolSize:    defaultMongoMaxPoolSize,
	}
}
