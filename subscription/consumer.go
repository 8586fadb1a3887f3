// Package subscription 以轮询方式消费全局事件流，并把事件交给下游处理器。
// 每个消费组维护独立的提交位置，互不协调；位置在全部副作用完成后才提交，
// 故处理器必须幂等：崩溃恢复或瞬态重投后同一事件可能被再次投递。
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wyfcoding/docstore/eventsourcing"
	"github.com/wyfcoding/docstore/lock"
	"github.com/wyfcoding/docstore/tracing"
)

// errTransient 标记可通过重投自动恢复的处理失败。
var errTransient = errors.New("transient sink failure")

// Sink 消费端处理器，收到的事件已经过注册表还原。
type Sink interface {
	ProcessEvent(ctx context.Context, stored eventsourcing.StoredEvent) error
}

// SinkFunc 函数式 Sink 适配器。
type SinkFunc func(ctx context.Context, stored eventsourcing.StoredEvent) error

// ProcessEvent 实现 Sink。
func (f SinkFunc) ProcessEvent(ctx context.Context, stored eventsourcing.StoredEvent) error {
	return f(ctx, stored)
}

// Consumer 全局事件流消费者，实现 server.Server 以纳入统一生命周期管理。
// 单条事件并发扇出到所有 Sink，全部成功后提交位置；错误按三级分类处理：
// 致命错误立即停机且不提交，可跳过错误记数后照常提交，其余视为瞬态，
// 退避后从上次提交位置重投。
type Consumer struct {
	name      string
	stream    eventsourcing.EventStream
	positions PositionStore
	sinks     []Sink
	logger    *slog.Logger

	pollInterval time.Duration
	batchSize    int
	fatalOn      []error
	skipOn       []error
	elector      *lock.LeaderElector

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option 消费者可选配置。
type Option func(*Consumer)

// WithPollInterval 设置流为空或瞬态失败时的等待间隔。
func WithPollInterval(interval time.Duration) Option {
	return func(c *Consumer) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithBatchSize 设置单次读取的最大事件数。
func WithBatchSize(size int) Option {
	return func(c *Consumer) {
		if size > 0 {
			c.batchSize = size
		}
	}
}

// WithFatalErrors 声明致命哨兵错误：处理器返回匹配错误时消费者立即停机，
// 不提交位置，留给人工修复。
func WithFatalErrors(sentinels ...error) Option {
	return func(c *Consumer) { c.fatalOn = append(c.fatalOn, sentinels...) }
}

// WithSkipErrors 声明可跳过哨兵错误：处理器返回匹配错误时记入日志与指标，
// 位置照常提交，事件不再重投。
func WithSkipErrors(sentinels ...error) Option {
	return func(c *Consumer) { c.skipOn = append(c.skipOn, sentinels...) }
}

// WithLeaderElection 启用领导者选举，同一消费组只有一个实例在消费。
func WithLeaderElection(elector *lock.LeaderElector) Option {
	return func(c *Consumer) { c.elector = elector }
}

// WithLogger 设置日志器。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConsumer 创建事件流消费者。name 同时作为位置存储中的消费组标识。
func NewConsumer(name string, stream eventsourcing.EventStream, positions PositionStore, sinks []Sink, opts ...Option) *Consumer {
	c := &Consumer{
		name:         name,
		stream:       stream,
		positions:    positions,
		sinks:        sinks,
		logger:       slog.Default(),
		pollInterval: time.Second,
		batchSize:    100,
		done:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start 开始消费，阻塞直到上下文取消或遇到致命错误。
func (c *Consumer) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	defer cancel()
	defer close(c.done)

	if c.elector == nil {
		return c.run(runCtx)
	}

	var runErr error
	c.elector.Campaign(runCtx, func(leaderCtx context.Context) {
		if err := c.run(leaderCtx); err != nil {
			runErr = err
			cancel()
		}
	})

	return runErr
}

// Stop 取消消费循环并等待其退出。
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("consumer %s did not stop in time: %w", c.name, ctx.Err())
	}
}

func (c *Consumer) run(ctx context.Context) error {
	position, err := c.positions.Load(ctx, c.name)
	if err != nil {
		return fmt.Errorf("failed to load position for consumer %s: %w", c.name, err)
	}

	c.logger.InfoContext(ctx, "event stream consumer started",
		"consumer", c.name,
		"position", position,
		"batch_size", c.batchSize,
		"sinks", len(c.sinks))

	for {
		if ctx.Err() != nil {
			return nil
		}

		events, err := c.stream.ReadAll(ctx, position, c.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			c.logger.WarnContext(ctx, "failed to read event stream, backing off",
				"consumer", c.name, "error", err)
			readFailures.WithLabelValues(c.name).Inc()

			if !c.sleep(ctx, c.pollInterval) {
				return nil
			}

			continue
		}

		if len(events) == 0 {
			if !c.sleep(ctx, c.pollInterval) {
				return nil
			}

			continue
		}

		for _, stored := range events {
			err := c.processOne(ctx, stored)
			if err == nil {
				position = stored.Position

				continue
			}

			if ctx.Err() != nil && !c.isFatal(err) {
				return nil
			}

			if errors.Is(err, errTransient) {
				c.logger.WarnContext(ctx, "transient failure, event will be redelivered",
					"consumer", c.name,
					"event_type", stored.Event.EventType(),
					"position", stored.Position,
					"error", err)

				if !c.sleep(ctx, c.pollInterval) {
					return nil
				}

				// 从上次提交位置重读。
				break
			}

			return err
		}
	}
}

// processOne 把单个事件并发扇出到所有 Sink，全部成功后提交位置。
// 任一 Sink 的瞬态失败都阻止提交，已成功的 Sink 在重投时依赖自身幂等。
func (c *Consumer) processOne(ctx context.Context, stored eventsourcing.StoredEvent) (err error) {
	ctx, span := tracing.StartSpan(ctx, "consumer.process_event",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("consumer", c.name),
			attribute.String("event.type", stored.Event.EventType()),
			attribute.String("aggregate.id", stored.Event.AggregateID()),
			attribute.Int64("stream.position", stored.Position),
		))
	defer func() {
		tracing.SetError(ctx, err)
		span.End()
	}()

	errs := make([]error, len(c.sinks))

	var wg conc.WaitGroup
	for i, sink := range c.sinks {
		wg.Go(func() {
			errs[i] = sink.ProcessEvent(ctx, stored)
		})
	}
	wg.Wait()

	for _, err := range errs {
		switch {
		case err == nil:
		case c.isFatal(err):
			return fmt.Errorf("fatal failure at position %d: %w", stored.Position, err)
		case c.isSkippable(err):
			c.logger.ErrorContext(ctx, "sink failed permanently, committing past event",
				"consumer", c.name,
				"event_type", stored.Event.EventType(),
				"aggregate_id", stored.Event.AggregateID(),
				"position", stored.Position,
				"error", err)
			skippedEvents.WithLabelValues(c.name, stored.Event.EventType()).Inc()
		default:
			return fmt.Errorf("%w: event %s at position %d: %v",
				errTransient, stored.Event.EventType(), stored.Position, err)
		}
	}

	if err := c.positions.Commit(ctx, c.name, stored.Position); err != nil {
		return fmt.Errorf("%w: failed to commit position %d: %v", errTransient, stored.Position, err)
	}

	processedEvents.WithLabelValues(c.name, stored.Event.EventType()).Inc()
	lastPosition.WithLabelValues(c.name).Set(float64(stored.Position))

	return nil
}

func (c *Consumer) isFatal(err error) bool {
	for _, sentinel := range c.fatalOn {
		if errors.Is(err, sentinel) {
			return true
		}
	}

	return false
}

func (c *Consumer) isSkippable(err error) bool {
	for _, sentinel := range c.skipOn {
		if errors.Is(err, sentinel) {
			return true
		}
	}

	return false
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
