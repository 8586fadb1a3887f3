package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wyfcoding/docstore/eventsourcing"
)

// Notification 发布到集成主题的通知信封。
type Notification struct {
	Event      string          `json:"event"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Notifier 把领域事件包装成通知信封发布到 Kafka，实现 messagequeue.EventPublisher。
type Notifier struct {
	producer *Producer
	topic    string
}

// NewNotifier 创建通知发布器，topic 为空时使用生产者默认主题。
func NewNotifier(producer *Producer, topic string) *Notifier {
	if topic == "" {
		topic = producer.defaultTopic
	}

	return &Notifier{producer: producer, topic: topic}
}

// Publish 实现 messagequeue.EventPublisher。
// 以聚合 ID 作为分区键，保证同一聚合的通知顺序。
func (n *Notifier) Publish(ctx context.Context, event eventsourcing.DomainEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope, err := json.Marshal(Notification{
		Event:      event.EventType(),
		OccurredAt: event.OccurredAt(),
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification envelope: %w", err)
	}

	return n.producer.PublishToTopic(ctx, n.topic, []byte(event.AggregateID()), envelope)
}

// Close 实现 messagequeue.EventPublisher。
func (n *Notifier) Close() error {
	return n.producer.Close()
}
