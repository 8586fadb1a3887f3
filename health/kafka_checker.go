package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

const defaultKafkaHealthTimeout = 2 * time.Second

// KafkaChecker 探测 Kafka 集群可达性：连上首个 broker 并拉取集群元数据。
// 通知发布是尽力而为的旁路，探针失败只影响就绪状态，不影响命令处理。
func KafkaChecker(brokers []string, timeout time.Duration) Checker {
	if timeout <= 0 {
		timeout = defaultKafkaHealthTimeout
	}

	return func() error {
		if len(brokers) == 0 {
			return errors.New("kafka brokers is empty")
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		dialer := &kafkago.Dialer{Timeout: timeout}
		conn, err := dialer.DialContext(ctx, "tcp", brokers[0])
		if err != nil {
			return fmt.Errorf("kafka dial failed: %w", err)
		}
		defer conn.Close()

		if _, err := conn.Brokers(); err != nil {
			return fmt.Errorf("kafka brokers fetch failed: %w", err)
		}

		return nil
	}
}
