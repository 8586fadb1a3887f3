// Package kafka 提供了基于 segmentio/kafka-go 的通知发布实现。
package kafka

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/wyfcoding/docstore/config"
	"github.com/wyfcoding/docstore/logging"
	"github.com/wyfcoding/docstore/tracing"
)

var (
	mqProduced = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "docstore_mq_produced_total", Help: "消息生产总数"},
		[]string{"topic", "status"},
	)
	mqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docstore_mq_operation_duration_seconds",
			Help:    "MQ操作耗时",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic", "operation"},
	)
)

func init() {
	prometheus.MustRegister(mqProduced, mqDuration)
}

// Guard 抽象熔断执行器。breaker.Breaker 与 breaker.DynamicBreaker 均满足该接口，
// 后者支持配置热更新时重建熔断策略。
type Guard interface {
	Execute(fn func() (any, error)) (any, error)
}

// Producer 带熔断、链路追踪与死信兜底的 Kafka 生产者。
type Producer struct {
	writer       *kafkago.Writer
	dlqWriter    *kafkago.Writer
	defaultTopic string
	guard        Guard
	logger       *logging.Logger
}

// NewProducer 创建生产者。发布失败的消息转入 <topic>.dlq 死信主题。
func NewProducer(cfg config.KafkaConfig, guard Guard, logger *logging.Logger) *Producer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		MaxAttempts:  5,
		RequiredAcks: kafkago.RequireAll,
		Async:        cfg.Async,
	}

	dlqWriter := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}

	return &Producer{
		writer:       w,
		dlqWriter:    dlqWriter,
		defaultTopic: cfg.Topic,
		guard:        guard,
		logger:       logger,
	}
}

// Publish 发布到默认主题。
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	return p.PublishToTopic(ctx, p.defaultTopic, key, value)
}

// PublishToTopic 发布到指定主题，注入追踪上下文头，同一 key 落入同一分区。
func (p *Producer) PublishToTopic(ctx context.Context, topic string, key, value []byte) error {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "Kafka.Publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	carrier := tracing.InjectContext(ctx)
	headers := make([]kafkago.Header, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}

	msg := kafkago.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: headers,
		Time:    time.Now(),
	}

	var err error
	if p.guard != nil {
		_, err = p.guard.Execute(func() (any, error) {
			return nil, p.writer.WriteMessages(ctx, msg)
		})
	} else {
		err = p.writer.WriteMessages(ctx, msg)
	}
	mqDuration.WithLabelValues(topic, "publish").Observe(time.Since(start).Seconds())

	if err != nil {
		mqProduced.WithLabelValues(topic, "failed").Inc()
		p.logger.ErrorContext(ctx, "failed to publish message", "topic", topic, "error", err)

		dlqMsg := msg
		dlqMsg.Topic = topic + ".dlq"
		if dlqErr := p.dlqWriter.WriteMessages(ctx, dlqMsg); dlqErr != nil {
			p.logger.ErrorContext(ctx, "failed to write to DLQ", "topic", dlqMsg.Topic, "error", dlqErr)
		}

		return err
	}

	mqProduced.WithLabelValues(topic, "success").Inc()

	return nil
}

// Close 关闭生产者及死信写入器。
func (p *Producer) Close() error {
	var err error
	if dlqErr := p.dlqWriter.Close(); dlqErr != nil {
		p.logger.Error("failed to close DLQ writer", "error", dlqErr)
		err = dlqErr
	}
	if wErr := p.writer.Close(); wErr != nil {
		p.logger.Error("failed to close writer", "error", wErr)
		err = wErr
	}

	return err
}
