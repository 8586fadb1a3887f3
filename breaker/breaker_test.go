package breaker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/docstore/config"
)

func TestExecutePassthroughWhenDisabled(t *testing.T) {
	b := NewBreaker(Settings{
		Name:   "disabled",
		Config: config.CircuitBreakerConfig{Enabled: false},
	}, nil)

	boom := errors.New("boom")
	calls := 0
	for i := 0; i < 10; i++ {
		_, err := b.Execute(func() (any, error) {
			calls++
			return nil, boom
		})
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, 10, calls)
}

func TestExecuteFailsFastWhenOpen(t *testing.T) {
	b := NewBreaker(Settings{
		Name:        "event-store",
		Config:      config.CircuitBreakerConfig{Enabled: true},
		MinRequests: 2,
	}, nil)

	boom := errors.New("connection refused")
	for i := 0; i < 2; i++ {
		_, err := b.Execute(func() (any, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}

	calls := 0
	_, err := b.Execute(func() (any, error) {
		calls++
		return "ok", nil
	})
	require.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Zero(t, calls)
}

func TestIsSuccessfulExemptsBusinessConflicts(t *testing.T) {
	conflict := errors.New("version conflict")
	b := NewBreaker(Settings{
		Name:        "event-store",
		Config:      config.CircuitBreakerConfig{Enabled: true},
		MinRequests: 2,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, conflict)
		},
	}, nil)

	// 冲突照常返回给调用方，但不计入失败统计。
	for i := 0; i < 10; i++ {
		_, err := b.Execute(func() (any, error) { return nil, conflict })
		require.ErrorIs(t, err, conflict)
	}

	ran := false
	_, err := b.Execute(func() (any, error) {
		ran = true
		return "ok", nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestDynamicBreakerRebuildsOnUpdate(t *testing.T) {
	d := NewDynamicBreaker("kafka-producer", nil, 0, 2)

	boom := errors.New("broker down")
	// 应用配置前直通执行，失败不触发熔断。
	for i := 0; i < 5; i++ {
		_, err := d.Execute(func() (any, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}

	d.Update(config.CircuitBreakerConfig{Enabled: true})
	for i := 0; i < 2; i++ {
		_, err := d.Execute(func() (any, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}
	_, err := d.Execute(func() (any, error) { return "ok", nil })
	require.ErrorIs(t, err, ErrServiceUnavailable)

	// 热更新关闭熔断后立即恢复直通。
	d.Update(config.CircuitBreakerConfig{Enabled: false})
	res, err := d.Execute(func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
}

func TestDynamicBreakerNilReceiver(t *testing.T) {
	var d *DynamicBreaker

	res, err := d.Execute(func() (any, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, res)

	d.Update(config.CircuitBreakerConfig{Enabled: true})
}
