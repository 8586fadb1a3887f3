// Package breaker 基于 gobreaker 封装熔断保护，隔离事件存储的 MySQL
// 写入与通知生产者的 Kafka 发送。熔断开启时调用方立即收到
// ErrServiceUnavailable，避免故障依赖拖垮连接池。
package breaker

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"github.com/wyfcoding/docstore/config"
	"github.com/wyfcoding/docstore/metrics"
)

// ErrServiceUnavailable 表示目标依赖当前处于熔断状态。
var ErrServiceUnavailable = errors.New("service unavailable: circuit breaker is open")

const (
	defaultFailureRatio = 0.5
	defaultMinRequests  = 5
)

// Breaker 封装单个 gobreaker 实例。配置未启用时退化为直通执行。
type Breaker struct {
	circuitBreaker *gobreaker.CircuitBreaker
}

// Settings 定义熔断器的初始化参数。
type Settings struct {
	Name         string
	Config       config.CircuitBreakerConfig
	FailureRatio float64
	MinRequests  uint32
	// IsSuccessful 判定返回的错误是否计入失败统计。为 nil 时任何
	// 非 nil 错误都计为失败。预期内的业务冲突应在此豁免，否则
	// 争用高峰会误触熔断。
	IsSuccessful func(err error) bool
}

// NewBreaker 按配置构建熔断器，状态变化写入日志与 Prometheus gauge。
func NewBreaker(st Settings, m *metrics.Metrics) *Breaker {
	if !st.Config.Enabled {
		return &Breaker{circuitBreaker: nil}
	}

	failureRatio := st.FailureRatio
	if failureRatio <= 0 {
		failureRatio = defaultFailureRatio
	}

	minRequests := st.MinRequests
	if minRequests == 0 {
		minRequests = defaultMinRequests
	}

	var stateGauge *prometheus.GaugeVec
	if m != nil {
		stateGauge = m.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0: Closed, 1: Half-Open, 2: Open)",
		}, []string{"name"})
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        st.Name,
		MaxRequests: st.Config.MaxRequests,
		Interval:    st.Config.Interval,
		Timeout:     st.Config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)

			return counts.Requests >= minRequests && ratio >= failureRatio
		},
		IsSuccessful: st.IsSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			if stateGauge != nil {
				stateGauge.WithLabelValues(name).Set(float64(to))
			}
		},
	})

	return &Breaker{circuitBreaker: cb}
}

// Execute 执行受熔断保护的函数。熔断开启时不执行 fn，直接返回
// ErrServiceUnavailable。
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	if b.circuitBreaker == nil {
		return fn()
	}

	res, err := b.circuitBreaker.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, ErrServiceUnavailable
		}

		return nil, err
	}

	return res, nil
}
