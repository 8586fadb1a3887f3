package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"github.com/wyfcoding/docstore/app"
	"github.com/wyfcoding/docstore/artifact"
	"github.com/wyfcoding/docstore/breaker"
	"github.com/wyfcoding/docstore/config"
	"github.com/wyfcoding/docstore/database"
	"github.com/wyfcoding/docstore/database/mongodb"
	"github.com/wyfcoding/docstore/dispatch"
	"github.com/wyfcoding/docstore/eventsourcing"
	gormes "github.com/wyfcoding/docstore/eventsourcing/persistence/gorm"
	"github.com/wyfcoding/docstore/health"
	"github.com/wyfcoding/docstore/lock"
	"github.com/wyfcoding/docstore/logging"
	"github.com/wyfcoding/docstore/messagequeue"
	"github.com/wyfcoding/docstore/messagequeue/kafka"
	"github.com/wyfcoding/docstore/metrics"
	"github.com/wyfcoding/docstore/page"
	"github.com/wyfcoding/docstore/projection"
	"github.com/wyfcoding/docstore/readmodel"
	mongostore "github.com/wyfcoding/docstore/readmodel/persistence/mongo"
	redisx "github.com/wyfcoding/docstore/redis"
	"github.com/wyfcoding/docstore/server"
	"github.com/wyfcoding/docstore/service"
	"github.com/wyfcoding/docstore/subscription"
	possgorm "github.com/wyfcoding/docstore/subscription/persistence/gorm"

	goredis "github.com/redis/go-redis/v9"
)

// Container 按配置装配进程所需的全部组件，并以依赖倒序登记清理钩子。
// 两个 worker 二进制共享同一装配逻辑，各自只构造自己需要的消费者。
type Container struct {
	Cfg     *config.Config
	Logger  *logging.Logger
	Metrics *metrics.Metrics

	DB    *database.DB
	Redis goredis.UniversalClient
	Mongo *mongodb.DynamicClient

	Registry   *eventsourcing.Registry
	EventStore *gormes.GormEventStore
	Artifacts  eventsourcing.AggregateRepository[*artifact.Artifact]
	Pages      eventsourcing.AggregateRepository[*page.Page]
	Positions  subscription.PositionStore

	artifactReads readmodel.ArtifactStore
	pageReads     readmodel.PageStore
	publisher     messagequeue.EventPublisher
	gateway       *dispatch.TemporalGateway

	lifecycle *app.Lifecycle
	checkers  map[string]health.Checker
}

// NewContainer 装配核心基础设施：关系库、事件存储、聚合仓储、消费位置与 Redis。
// MongoDB、Kafka 与 Temporal 按需由对应方法延迟装配。
func NewContainer(cfg *config.Config, logger *logging.Logger) (*Container, error) {
	m := metrics.NewMetrics(cfg.Server.Name)
	m.RegisterBuildInfo(cfg.Server.Name, cfg.Version)

	c := &Container{
		Cfg:       cfg,
		Logger:    logger,
		Metrics:   m,
		lifecycle: app.NewLifecycle(logger.Logger),
		checkers:  make(map[string]health.Checker),
	}

	db, err := database.NewDB(cfg.Data.Database, cfg.CircuitBreaker, logger, m)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	c.DB = db
	c.checkers["database"] = health.DBChecker(db)
	c.lifecycle.Append(app.Hook{
		Name: "database",
		OnStop: func(context.Context) error {
			sqlDB, sqlErr := db.RawDB().DB()
			if sqlErr != nil {
				return sqlErr
			}
			return sqlDB.Close()
		},
	})

	registry := eventsourcing.NewRegistry()
	artifact.RegisterEvents(registry)
	page.RegisterEvents(registry)
	c.Registry = registry

	// 追加路径走熔断保护的事务执行器，MySQL 故障时命令侧快速失败。
	store, err := gormes.NewGormEventStore(db.RawDB(), registry, cfg.EventStore.TableName,
		gormes.WithTransactionRunner(db.Transaction))
	if err != nil {
		return nil, fmt.Errorf("init event store: %w", err)
	}
	c.EventStore = store

	repoOpts := []eventsourcing.RepositoryOption{
		eventsourcing.WithRepositoryLogger(logger.Logger),
	}
	if cfg.EventStore.SnapshotInterval > 0 {
		repoOpts = append(repoOpts, eventsourcing.WithSnapshotStrategy(
			eventsourcing.NewDefaultSnapshotStrategy(cfg.EventStore.SnapshotInterval)))
	}
	c.Artifacts = eventsourcing.NewEventSourcedRepository(store, artifact.New, repoOpts...)
	c.Pages = eventsourcing.NewEventSourcedRepository(store, page.New, repoOpts...)

	positions, err := possgorm.NewGormPositionStore(db.RawDB())
	if err != nil {
		return nil, fmt.Errorf("init position store: %w", err)
	}
	c.Positions = positions

	if len(cfg.Data.Redis.Addrs) > 0 {
		redisClient, cleanup, redisErr := redisx.NewClient(&cfg.Data.Redis, logger)
		if redisErr != nil {
			return nil, fmt.Errorf("init redis: %w", redisErr)
		}
		c.Redis = redisClient
		c.checkers["redis"] = health.RedisChecker(redisClient)
		c.lifecycle.Append(app.Hook{
			Name: "redis",
			OnStop: func(context.Context) error {
				cleanup()
				return nil
			},
		})
	}

	return c, nil
}

// MongoReadStores 连接 MongoDB 并建立读模型物化存储，重复调用复用同一连接。
func (c *Container) MongoReadStores(ctx context.Context) (readmodel.ArtifactStore, readmodel.PageStore, error) {
	if c.artifactReads != nil && c.pageReads != nil {
		return c.artifactReads, c.pageReads, nil
	}

	mcfg := c.Cfg.Data.MongoDB
	mongoClient, err := mongodb.NewDynamicClientFromConfig(mcfg, c.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init mongodb: %w", err)
	}
	c.Mongo = mongoClient
	c.checkers["mongodb"] = health.MongoChecker(mcfg.URI, 0)
	c.lifecycle.Append(app.Hook{
		Name: "mongodb",
		OnStop: func(context.Context) error {
			return mongoClient.Close()
		},
	})

	artifactCollection := mcfg.ArtifactCollection
	if artifactCollection == "" {
		artifactCollection = "artifacts"
	}
	pageCollection := mcfg.PageCollection
	if pageCollection == "" {
		pageCollection = "pages"
	}

	if err := mongostore.EnsureIndexes(ctx, mongoClient.DB(), artifactCollection, pageCollection); err != nil {
		return nil, nil, fmt.Errorf("ensure read model indexes: %w", err)
	}
	// 热替换指向新库后在新库上重建读模型索引。
	mongodb.RegisterReloadHook(mongoClient, mongodb.Config{
		URI:      mcfg.URI,
		Database: mcfg.Database,
	}, func(swapCtx context.Context) error {
		return mongostore.EnsureIndexes(swapCtx, mongoClient.DB(), artifactCollection, pageCollection)
	})

	c.artifactReads = mongostore.NewArtifactStore(mongoClient.DB, artifactCollection)
	c.pageReads = mongostore.NewPageStore(mongoClient.DB, pageCollection)
	return c.artifactReads, c.pageReads, nil
}

// KafkaPublisher 装配带熔断的 Kafka 集成通知发布器；未启用时返回空发布器。
// 熔断策略通过配置热更新钩子支持运行期调整。
func (c *Container) KafkaPublisher() messagequeue.EventPublisher {
	if c.publisher != nil {
		return c.publisher
	}

	kcfg := c.Cfg.MessageQueue.Kafka
	if !kcfg.Enabled || len(kcfg.Brokers) == 0 {
		c.publisher = messagequeue.NopPublisher{}
		return c.publisher
	}

	guard := breaker.NewDynamicBreaker("kafka-producer", c.Metrics, 0, 0)
	guard.Update(c.Cfg.CircuitBreaker)
	config.RegisterReloadHook(func(updated *config.Config) {
		guard.Update(updated.CircuitBreaker)
	})

	producer := kafka.NewProducer(kcfg, guard, c.Logger)
	c.checkers["kafka"] = health.KafkaChecker(kcfg.Brokers, kcfg.DialTimeout)
	c.lifecycle.Append(app.Hook{
		Name: "kafka-producer",
		OnStop: func(context.Context) error {
			return producer.Close()
		},
	})

	c.publisher = kafka.NewNotifier(producer, kcfg.Topic)
	return c.publisher
}

// TemporalStarter 连接 Temporal 并构造工作流启动网关；未启用时返回 nil。
func (c *Container) TemporalStarter() (*dispatch.TemporalGateway, error) {
	if c.gateway != nil {
		return c.gateway, nil
	}

	tcfg := c.Cfg.Temporal
	if !tcfg.Enabled {
		return nil, nil
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  tcfg.HostPort,
		Namespace: tcfg.Namespace,
		Logger:    tlog.NewStructuredLogger(c.Logger.Logger),
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal: %w", err)
	}
	c.lifecycle.Append(app.Hook{
		Name: "temporal-client",
		OnStop: func(context.Context) error {
			temporalClient.Close()
			return nil
		},
	})

	c.gateway = dispatch.NewTemporalGateway(temporalClient, tcfg.TaskQueue,
		dispatch.WithGatewayLogger(c.Logger.Logger))
	return c.gateway, nil
}

// Elector 为指定消费组构造基于 Redis 的领导选举器。
func (c *Container) Elector(group string) (*lock.LeaderElector, error) {
	if c.Redis == nil {
		return nil, fmt.Errorf("leader election for consumer %s requires redis to be configured", group)
	}

	prefix := c.Cfg.Lock.Prefix
	if prefix == "" {
		prefix = "docstore:leader:"
	}
	ttl := c.Cfg.Lock.DefaultExpiration
	if ttl <= 0 {
		ttl = 15 * time.Second
	}

	locker := lock.NewRedisLock(c.Redis, lock.WithLockLogger(c.Logger.Logger))

	return lock.NewLeaderElector(locker, prefix+group, ttl,
		lock.WithElectorLogger(c.Logger.Logger)), nil
}

// consumerOptions 把配置翻译为订阅消费者的通用选项。
func (c *Container) consumerOptions(cfg config.ConsumerConfig) ([]subscription.Option, error) {
	opts := []subscription.Option{subscription.WithLogger(c.Logger.Logger)}
	if cfg.PollInterval > 0 {
		opts = append(opts, subscription.WithPollInterval(cfg.PollInterval))
	}
	if cfg.BatchSize > 0 {
		opts = append(opts, subscription.WithBatchSize(cfg.BatchSize))
	}
	if cfg.LeaderElection {
		elector, err := c.Elector(cfg.Group)
		if err != nil {
			return nil, err
		}
		opts = append(opts, subscription.WithLeaderElection(elector))
	}
	return opts, nil
}

// ReadModelConsumer 装配读模型投影消费者：
// 投影完整性故障视为致命错误，进程退出待修复后重放。
func (c *Container) ReadModelConsumer(ctx context.Context) (*subscription.Consumer, error) {
	artifactReads, pageReads, err := c.MongoReadStores(ctx)
	if err != nil {
		return nil, err
	}

	engine := projection.NewEngine(c.Logger.Logger,
		projection.NewArtifactProjector(artifactReads),
		projection.NewPageProjector(pageReads),
	)

	ccfg := c.Cfg.Consumers.ReadModel
	group := ccfg.Group
	if group == "" {
		group = "readmodel"
	}
	opts, err := c.consumerOptions(ccfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, subscription.WithFatalErrors(projection.ErrIntegrity))

	return subscription.NewConsumer(group, c.EventStore, c.Positions,
		[]subscription.Sink{engine}, opts...), nil
}

// PipelineConsumer 装配工作流派发消费者：
// 派发重试耗尽跳过并提交位置，其余错误退避后从已提交位置重放。
func (c *Container) PipelineConsumer(ctx context.Context) (*subscription.Consumer, error) {
	starter, err := c.TemporalStarter()
	if err != nil {
		return nil, err
	}
	if starter == nil {
		return nil, errors.New("pipeline worker requires temporal to be enabled")
	}

	_, pageReads, err := c.MongoReadStores(ctx)
	if err != nil {
		return nil, err
	}

	pageSvc := service.NewPageService(c.Pages, c.Artifacts, pageReads, starter, c.Logger.Logger)
	dispatcher := dispatch.NewDispatcher(starter, pageSvc,
		dispatch.WithDispatcherLogger(c.Logger.Logger))

	ccfg := c.Cfg.Consumers.Pipeline
	group := ccfg.Group
	if group == "" {
		group = "pipeline"
	}
	opts, err := c.consumerOptions(ccfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, subscription.WithSkipErrors(dispatch.ErrDispatchFailed))

	return subscription.NewConsumer(group, c.EventStore, c.Positions,
		[]subscription.Sink{dispatcher}, opts...), nil
}

// Services 装配命令侧应用服务，供内嵌命令入口与装配测试使用。
func (c *Container) Services(ctx context.Context) (*service.ArtifactService, *service.PageService, *service.DeletionService, error) {
	artifactReads, pageReads, err := c.MongoReadStores(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	starter, err := c.TemporalStarter()
	if err != nil {
		return nil, nil, nil, err
	}
	var workflowStarter service.WorkflowStarter
	if starter != nil {
		workflowStarter = starter
	}

	artifactSvc := service.NewArtifactService(c.Artifacts, artifactReads, c.KafkaPublisher(), c.Logger.Logger)
	pageSvc := service.NewPageService(c.Pages, c.Artifacts, pageReads, workflowStarter, c.Logger.Logger)
	deletionSvc := service.NewDeletionService(c.Artifacts, c.Pages, c.Logger.Logger)

	return artifactSvc, pageSvc, deletionSvc, nil
}

// OpsServer 构造暴露指标与健康探针的运维端点服务器。
// 健康探针覆盖装配时登记的全部依赖。
func (c *Container) OpsServer() *server.OpsServer {
	mcfg := c.Cfg.Metrics
	port := mcfg.Port
	if port == "" {
		port = "9090"
	}
	path := mcfg.Path
	if path == "" {
		path = "/metrics"
	}

	handlers := map[string]http.Handler{
		path:       c.Metrics.Handler(),
		"/healthz": health.Handler(c.checkers),
	}
	return server.NewOpsServer(":"+port, handlers, c.Logger.Logger)
}

// Cleanup 以装配的倒序释放容器持有的资源。
func (c *Container) Cleanup(ctx context.Context) {
	if err := c.lifecycle.Stop(ctx); err != nil {
		c.Logger.Error("resource cleanup finished with errors", "error", err)
	}
}
