// Package config 定义 TOML 配置结构并负责加载、环境变量覆盖、校验
// 与热更新分发。读写两侧进程共用同一份结构，按各自用到的段取值。
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wyfcoding/docstore/logging"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 全局顶级配置结构，写入口与读模型消费者进程共用。
// 字段已按内存对齐优化 (fieldalignment).
type Config struct {
	Version        string               `mapstructure:"version"        toml:"version"`
	Tracing        TracingConfig        `mapstructure:"tracing"        toml:"tracing"`
	Metrics        MetricsConfig        `mapstructure:"metrics"        toml:"metrics"`
	Lock           LockConfig           `mapstructure:"lock"           toml:"lock"`
	Log            LogConfig            `mapstructure:"log"            toml:"log"`
	Server         ServerConfig         `mapstructure:"server"         toml:"server"`
	MessageQueue   MessageQueueConfig   `mapstructure:"messagequeue"   toml:"messagequeue"`
	Data           DataConfig           `mapstructure:"data"           toml:"data"`
	EventStore     EventStoreConfig     `mapstructure:"eventstore"     toml:"eventstore"`
	Temporal       TemporalConfig       `mapstructure:"temporal"       toml:"temporal"`
	Consumers      ConsumersConfig      `mapstructure:"consumers"      toml:"consumers"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuitbreaker" toml:"circuitbreaker"`
}

// ServerConfig 定义服务进程的基础标识与环境参数.
type ServerConfig struct {
	Name        string `mapstructure:"name"        toml:"name"        validate:"required"`
	Environment string `mapstructure:"environment" toml:"environment" validate:"oneof=dev test prod"`
}

// DataConfig 汇集了所有持久化存储与中间件的数据源配置.
type DataConfig struct {
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"  toml:"mongodb"`
	Database DatabaseConfig `mapstructure:"database" toml:"database"`
	Redis    RedisConfig    `mapstructure:"redis"    toml:"redis"`
}

// DatabaseConfig 定义事件存储所在关系库的连接与连接池参数.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"            toml:"driver" validate:"required"`
	DSN             string        `mapstructure:"dsn"               toml:"dsn"    validate:"required"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" toml:"conn_max_lifetime"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"    toml:"slow_threshold"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    toml:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"    toml:"max_open_conns"`
}

// EventStoreConfig 定义事件存储行为参数.
type EventStoreConfig struct {
	TableName        string `mapstructure:"table_name"        toml:"table_name"`
	SnapshotInterval int64  `mapstructure:"snapshot_interval" toml:"snapshot_interval"` // 0 表示关闭快照。
}

// RedisConfig 定义 Redis 连接与池化参数，锁与选举租约存放于此.
type RedisConfig struct {
	MasterName   string        `mapstructure:"master_name"   toml:"master_name"`
	Password     string        `mapstructure:"password"      toml:"password"`
	Addrs        []string      `mapstructure:"addrs"         toml:"addrs"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"  toml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" toml:"write_timeout"`
	DB           int           `mapstructure:"db"            toml:"db"`
	PoolSize     int           `mapstructure:"pool_size"     toml:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" toml:"min_idle_conns"`
}

// MongoDBConfig 定义读模型 MongoDB 的连接参数.
type MongoDBConfig struct {
	URI                string `mapstructure:"uri"                  toml:"uri"`
	Database           string `mapstructure:"database"             toml:"database"`
	ArtifactCollection string `mapstructure:"artifact_collection"  toml:"artifact_collection"`
	PageCollection     string `mapstructure:"page_collection"      toml:"page_collection"`
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level      string          `mapstructure:"level"       toml:"level"`       // 日志级别。
	Format     string          `mapstructure:"format"      toml:"format"`      // 日志格式（json/text）。
	Output     string          `mapstructure:"output"      toml:"output"`      // 日志输出目标。
	File       string          `mapstructure:"file"        toml:"file"`        // 日志文件路径。
	MaxSize    int             `mapstructure:"max_size"    toml:"max_size"`    // 单个文件最大大小 (MB)。
	MaxBackups int             `mapstructure:"max_backups" toml:"max_backups"` // 最大备份数。
	MaxAge     int             `mapstructure:"max_age"     toml:"max_age"`     // 最大保留天数。
	Compress   bool            `mapstructure:"compress"    toml:"compress"`    // 是否启用压缩。
	Remote     RemoteLogConfig `mapstructure:"remote"      toml:"remote"`      // 远程日志写入配置。
}

// RemoteLogConfig 定义远程日志写入配置。
type RemoteLogConfig struct {
	Enabled       bool          `mapstructure:"enabled"        toml:"enabled"`
	Endpoint      string        `mapstructure:"endpoint"       toml:"endpoint"`
	AuthToken     string        `mapstructure:"auth_token"     toml:"auth_token"`
	Timeout       time.Duration `mapstructure:"timeout"        toml:"timeout"`
	BatchSize     int           `mapstructure:"batch_size"     toml:"batch_size"`
	BufferSize    int           `mapstructure:"buffer_size"    toml:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval" toml:"flush_interval"`
	DropOnFull    bool          `mapstructure:"drop_on_full"   toml:"drop_on_full"`
}

// MessageQueueConfig 聚合通知发布所用的消息中间件配置.
type MessageQueueConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka" toml:"kafka"`
}

// KafkaConfig 定义 Kafka 生产者参数.
type KafkaConfig struct {
	Topic        string        `mapstructure:"topic"         toml:"topic"`
	Brokers      []string      `mapstructure:"brokers"       toml:"brokers"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"  toml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"  toml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" toml:"write_timeout"`
	Async        bool          `mapstructure:"async"         toml:"async"`
	Enabled      bool          `mapstructure:"enabled"       toml:"enabled"`
}

// TemporalConfig 定义工作流引擎客户端参数.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"  toml:"host_port"`
	Namespace string `mapstructure:"namespace"  toml:"namespace"`
	TaskQueue string `mapstructure:"task_queue" toml:"task_queue"`
	Enabled   bool   `mapstructure:"enabled"    toml:"enabled"`
}

// ConsumersConfig 定义各事件流消费组参数.
type ConsumersConfig struct {
	ReadModel ConsumerConfig `mapstructure:"readmodel" toml:"readmodel"`
	Pipeline  ConsumerConfig `mapstructure:"pipeline"  toml:"pipeline"`
}

// ConsumerConfig 定义单个消费组参数.
type ConsumerConfig struct {
	Group          string        `mapstructure:"group"           toml:"group"`
	PollInterval   time.Duration `mapstructure:"poll_interval"   toml:"poll_interval"`
	BatchSize      int           `mapstructure:"batch_size"      toml:"batch_size"`
	LeaderElection bool          `mapstructure:"leader_election" toml:"leader_election"`
}

// TracingConfig 分布式链路追踪（OpenTelemetry）配置.
type TracingConfig struct {
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint"`
	SamplerRatio float64 `mapstructure:"sampler_ratio" toml:"sampler_ratio"`
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
}

// MetricsConfig 普罗米修斯监控指标暴露配置.
type MetricsConfig struct {
	Port    string `mapstructure:"port"    toml:"port"`
	Path    string `mapstructure:"path"    toml:"path"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// CircuitBreakerConfig 定义熔断器（如 Gobreaker）的保护策略.
type CircuitBreakerConfig struct {
	Interval    time.Duration `mapstructure:"interval"     toml:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"      toml:"timeout"`
	MaxRequests uint32        `mapstructure:"max_requests" toml:"max_requests"`
	Enabled     bool          `mapstructure:"enabled"      toml:"enabled"`
}

// LockConfig 消费者领导者选举所用分布式锁配置.
type LockConfig struct {
	Prefix            string        `mapstructure:"prefix"             toml:"prefix"`
	DefaultExpiration time.Duration `mapstructure:"default_expiration" toml:"default_expiration"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"        toml:"retry_delay"`
	MaxRetries        int           `mapstructure:"max_retries"        toml:"max_retries"`
}

var vInstance = viper.New()
var onReload []func(*Config)

// RegisterReloadHook 注册配置热更新回调。
func RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	onReload = append(onReload, hook)
}

// Load 读取 TOML 配置、应用环境变量覆盖并校验，随后监听文件变化
// 热更新。重载只在校验通过后触发已注册的回调。
func Load(path string, conf any) error {
	vInstance.SetConfigFile(path)
	vInstance.SetConfigType("toml")

	vInstance.SetEnvPrefix("APP")
	vInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vInstance.AutomaticEnv()

	if err := vInstance.ReadInConfig(); err != nil {
		return fmt.Errorf("read config error: %w", err)
	}

	if err := vInstance.Unmarshal(conf); err != nil {
		return fmt.Errorf("unmarshal config error: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(conf); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	vInstance.WatchConfig()
	vInstance.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name)
		// 编辑器保存往往触发多次 fsnotify 事件，去抖后再读。
		const debounceTimeout = 500 * time.Millisecond
		time.Sleep(debounceTimeout)

		reload(conf, validate)
	})

	return nil
}

// reload 重新反序列化并校验配置。校验失败只告警、不执行回调；
// 校验通过后同步全局日志级别并依次执行热更新回调。
func reload(conf any, validate *validator.Validate) {
	if unmarshalErr := vInstance.Unmarshal(conf); unmarshalErr != nil {
		slog.Error("reload config unmarshal failed", "error", unmarshalErr)

		return
	}

	if validateErr := validate.Struct(conf); validateErr != nil {
		slog.Error("reload config validation failed", "error", validateErr)

		return
	}

	cfg, ok := conf.(*Config)
	if !ok {
		return
	}

	logging.SetLevel(cfg.Log.Level)
	for _, hook := range onReload {
		hook(cfg)
	}
	slog.Info("config hot-reloaded", "hooks", len(onReload))
}

// PrintWithMask 脱敏打印当前配置.
func PrintWithMask(conf any) {
	data, err := json.Marshal(conf)
	if err != nil {
		slog.Error("failed to marshal config for printing", "error", err)

		return
	}

	var configMap map[string]any
	if unmarshalErr := json.Unmarshal(data, &configMap); unmarshalErr != nil {
		slog.Error("failed to unmarshal config for masking", "error", unmarshalErr)

		return
	}

	mask(configMap)

	maskedJSON, marshalErr := json.MarshalIndent(configMap, "  ", "  ")
	if marshalErr != nil {
		slog.Error("failed to marshal masked config", "error", marshalErr)

		return
	}

	slog.Info("Current effective configuration", "config", string(maskedJSON))
}

func mask(configMap map[string]any) {
	sensitiveKeys := []string{"password", "secret", "dsn", "key", "token"}

	for key, val := range configMap {
		if subMap, ok := val.(map[string]any); ok {
			mask(subMap)

			continue
		}

		if slice, ok := val.([]any); ok {
			for _, item := range slice {
				if itemMap, ok := item.(map[string]any); ok {
					mask(itemMap)
				}
			}

			continue
		}

		for _, sensitiveKey := range sensitiveKeys {
			if strings.Contains(strings.ToLower(key), sensitiveKey) {
				configMap[key] = "******"

				break
			}
		}
	}
}

