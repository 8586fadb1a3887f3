// Package database 初始化事件存储所在的关系库连接：GORM 方言选择、
// 连接池参数、慢查询日志、OTel 插件与熔断保护的事务入口。
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/docstore/breaker"
	"github.com/wyfcoding/docstore/config"
	"github.com/wyfcoding/docstore/logging"
	"github.com/wyfcoding/docstore/metrics"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/opentelemetry/tracing"
)

// ErrTransactionFailed 事务执行失败.
var ErrTransactionFailed = errors.New("transaction failed")

const defaultSlowThreshold = 200 * time.Millisecond

// DB 在 *gorm.DB 之上附加熔断保护的事务入口。
type DB struct {
	*gorm.DB
	breaker *breaker.Breaker
}

// NewDB 初始化并返回一个功能增强的数据库连接封装.
// TranslateError 必须开启：事件存储依赖 gorm.ErrDuplicatedKey 识别并发写冲突。
func NewDB(cfg config.DatabaseConfig, cbCfg config.CircuitBreakerConfig, logger *logging.Logger, m *metrics.Metrics) (*DB, error) {
	var dialer gorm.Dialector

	dsn := cfg.DSN
	switch cfg.Driver {
	case "mysql":
		dialer = mysql.Open(dsn)
	case "postgres":
		dialer = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	slowThreshold := cfg.SlowThreshold
	if slowThreshold <= 0 {
		slowThreshold = defaultSlowThreshold
	}

	gormDB, err := gorm.Open(dialer, &gorm.Config{
		Logger:                                   logging.NewGormLogger(logger, slowThreshold),
		NowFunc:                                  nil,
		DryRun:                                   false,
		PrepareStmt:                              true,
		CreateBatchSize:                          0,
		SkipDefaultTransaction:                   false,
		NamingStrategy:                           schema.NamingStrategy{}, //nolint:exhaustruct // 经过审计，此处忽略是安全的。
		FullSaveAssociations:                     false,
		QueryFields:                              false,
		TranslateError:                           true,
		PropagateUnscoped:                        false,
		ConnPool:                                 nil,
		Dialector:                                nil,
		Plugins:                                  map[string]gorm.Plugin{},
		DisableAutomaticPing:                     false,
		DisableForeignKeyConstraintWhenMigrating: false,
		IgnoreRelationshipsWhenMigrating:         false,
		DisableNestedTransaction:                 false,
		AllowGlobalUpdate:                        false,
		PrepareStmtMaxSize:                       0,
		PrepareStmtTTL:                           0,
		DefaultTransactionTimeout:                0,
		DefaultContextTimeout:                    0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if errTracing := gormDB.Use(tracing.NewPlugin()); errTracing != nil {
		return nil, fmt.Errorf("failed to register gorm otel plugin: %w", errTracing)
	}

	sqlDB, errDB := gormDB.DB()
	if errDB != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", errDB)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	cb := breaker.NewBreaker(breaker.Settings{
		Name:         "database-" + cfg.Driver,
		Config:       cbCfg,
		FailureRatio: 0,
		MinRequests:  0,
		// 并发写同一聚合版本触发的唯一键冲突是正常业务结果，
		// 计入失败统计会让写入争用高峰误开熔断。
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, gorm.ErrDuplicatedKey)
		},
	}, m)

	return &DB{
		DB:      gormDB,
		breaker: cb,
	}, nil
}

// Transaction 执行带熔断保护的事务。熔断开启时返回
// breaker.ErrServiceUnavailable，事务函数不会执行。
// 事务内产生的错误经 ErrTransactionFailed 包装后仍可用 errors.Is
// 识别原始哨兵（如 gorm.ErrDuplicatedKey）。
func (db *DB) Transaction(ctx context.Context, fc func(tx *gorm.DB) error) error {
	_, err := db.breaker.Execute(func() (any, error) {
		errTx := db.DB.WithContext(ctx).Transaction(fc)
		if errTx != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransactionFailed, errTx)
		}

		return struct{}{}, nil
	})

	return err
}

// RawDB 暴露原始 GORM 实例.
func (db *DB) RawDB() *gorm.DB {
	return db.DB
}
