// Package logging 封装 slog 结构化日志：JSON 输出、lumberjack 切割、
// 追踪上下文注入与 GORM 日志桥接。事件处理链路上的所有组件共用这里的
// 全局级别，配置热更新可即时调整。
package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm/logger"

	"go.opentelemetry.io/otel/trace"
)

var (
	defaultLogger *Logger
	// once 保证 InitLogger 的单例语义，重复初始化不替换已有实例。
	once sync.Once
	// levelVar 是全局日志级别，所有已创建的 Logger 共享，支持热更新。
	levelVar = new(slog.LevelVar)
)

// Config 定义日志配置。
type Config struct {
	Service    string
	Module     string
	Level      string
	File       string       // 日志文件路径，为空则只输出到 stdout
	MaxSize    int          // 每个日志文件最大尺寸 (MB)
	MaxBackups int          // 保留旧日志文件的最大个数
	MaxAge     int          // 保留旧日志文件的最大天数
	Compress   bool         // 是否压缩旧日志
	Remote     RemoteConfig // 远程日志写入，可选
}

// Logger 在 *slog.Logger 之上附加服务名与模块名，便于区分日志来源。
type Logger struct {
	*slog.Logger
	Service string
	Module  string

	closer func() error
}

// Close 刷新并关闭异步日志通道（如远程写入）。未启用远程写入时为空操作。
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer()
}

// TraceHandler 装饰下游 Handler，把上下文中的 OTel SpanContext
// 注入为 trace_id/span_id 属性，使日志行能与追踪 span 关联。
type TraceHandler struct {
	slog.Handler
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

// ParseLevel 将字符串日志级别解析为 slog.Level，未知级别回退为 Info。
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel 动态调整全局日志级别，对所有已创建的 Logger 即时生效。
// 配置热更新时由 config 包回调。
func SetLevel(level string) {
	levelVar.Set(ParseLevel(level))
}

// NewFromConfig 按配置构建 Logger：本地 JSON 输出（可选切割）、
// 可选远程写入扇出，最外层由 TraceHandler 注入追踪上下文。
func NewFromConfig(cfg Config) *Logger {
	levelVar.Set(ParseLevel(cfg.Level))

	opts := &slog.HandlerOptions{
		Level: levelVar,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			return a
		},
	}

	handler := newSink(cfg, opts)

	var closer func() error
	if cfg.Remote.Enabled && cfg.Remote.Endpoint != "" {
		writer, closeFn := newRemoteWriter(cfg.Remote)
		handler = newMultiHandler(handler, slog.NewJSONHandler(writer, opts))
		closer = closeFn
	}

	base := slog.New(&TraceHandler{Handler: handler}).With(
		slog.String("service", cfg.Service),
		slog.String("module", cfg.Module),
	)

	return &Logger{
		Logger:  base,
		Service: cfg.Service,
		Module:  cfg.Module,
		closer:  closer,
	}
}

// newSink 选择本地输出目标：配置了文件路径则经 lumberjack 切割，否则写 stdout。
func newSink(cfg Config, opts *slog.HandlerOptions) slog.Handler {
	if cfg.File == "" {
		return slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}, opts)
}

// InitLogger 初始化全局默认日志记录器并接管 slog.Default，只生效一次。
func InitLogger(service, module string, level ...string) {
	once.Do(func() {
		lvl := "info"
		if len(level) > 0 {
			lvl = level[0]
		}
		defaultLogger = NewFromConfig(Config{
			Service: service,
			Module:  module,
			Level:   lvl,
		})
		slog.SetDefault(defaultLogger.Logger)
	})
}

func ensureDefault() {
	if defaultLogger == nil {
		InitLogger("docstore", "default")
	}
}

// Default 返回全局默认 Logger，未初始化时先以缺省配置初始化。
func Default() *Logger {
	ensureDefault()
	return defaultLogger
}

// Info 用默认 Logger 记录 Info 级别日志。
func Info(ctx context.Context, msg string, args ...any) {
	ensureDefault()
	defaultLogger.InfoContext(ctx, msg, args...)
}

// Warn 用默认 Logger 记录 Warn 级别日志。
func Warn(ctx context.Context, msg string, args ...any) {
	ensureDefault()
	defaultLogger.WarnContext(ctx, msg, args...)
}

// Error 用默认 Logger 记录 Error 级别日志。
func Error(ctx context.Context, msg string, args ...any) {
	ensureDefault()
	defaultLogger.ErrorContext(ctx, msg, args...)
}

// Debug 用默认 Logger 记录 Debug 级别日志。
func Debug(ctx context.Context, msg string, args ...any) {
	ensureDefault()
	defaultLogger.DebugContext(ctx, msg, args...)
}

// LogDuration 返回记录操作耗时的收尾函数，与 defer 搭配使用。
func LogDuration(ctx context.Context, operation string, args ...any) func() {
	start := time.Now()
	return func() {
		logArgs := append(args, "duration", time.Since(start))
		Info(ctx, fmt.Sprintf("%s finished", operation), logArgs...)
	}
}

// GormLogger 实现 gorm.io/gorm/logger.Interface，把数据库操作日志
// 归并到统一的 slog 输出。慢查询以 Warn 记录，错误以 Error 记录。
type GormLogger struct {
	logger        *slog.Logger
	SlowThreshold time.Duration
}

func NewGormLogger(logger *Logger, slowThreshold time.Duration) *GormLogger {
	return &GormLogger{
		logger:        logger.Logger,
		SlowThreshold: slowThreshold,
	}
}

// LogMode 沿用当前配置，级别过滤统一由 slog Handler 承担。
func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return l
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	l.logger.InfoContext(ctx, fmt.Sprintf(msg, data...))
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	l.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	l.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
}

// Trace 记录 SQL 执行详情。"record not found" 不视为错误，由调用方
// 翻译成领域语义。
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []any{
		slog.String("sql", sql),
		slog.Duration("elapsed", elapsed),
	}
	if rows != -1 {
		fields = append(fields, slog.Int64("rows", rows))
	}

	switch {
	case err != nil && !errors.Is(err, logger.ErrRecordNotFound):
		fields = append(fields, slog.Any("error", err))
		l.logger.ErrorContext(ctx, "gorm trace error", fields...)
	case l.SlowThreshold != 0 && elapsed > l.SlowThreshold:
		fields = append(fields, slog.String("type", "slow_query"))
		l.logger.WarnContext(ctx, "gorm trace slow query", fields...)
	default:
		l.logger.DebugContext(ctx, "gorm trace", fields...)
	}
}
