package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLock 可编程的锁实现：前 failures 次抢锁失败，之后成功。
type fakeLock struct {
	mu       sync.Mutex
	failures int
	acquired int
	released []string
}

func (f *fakeLock) Acquire(context.Context, string, time.Duration) (string, error) {
	return "", ErrLockHeld
}

func (f *fakeLock) AcquireWithWatchdog(context.Context, string, time.Duration) (string, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures > 0 {
		f.failures--
		return "", nil, ErrLockHeld
	}
	f.acquired++

	return "token-1", func() {}, nil
}

func (f *fakeLock) Release(_ context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, key+"/"+token)

	return nil
}

func TestCampaignRunsCallbackUnderLeadership(t *testing.T) {
	fake := &fakeLock{}
	elector := NewLeaderElector(fake, "docstore:leader:readmodel", time.Second)

	ctx, cancel := context.WithCancel(context.Background())

	ran := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		elector.Campaign(ctx, func(context.Context) {
			close(ran)
			<-ctx.Done()
		})
	}()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("campaign did not exit after cancellation")
	}

	// ctx 结束后主动退位，租约必须被释放。
	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.released, 1)
	assert.Equal(t, "docstore:leader:readmodel/token-1", fake.released[0])
}

func TestCampaignStopsWithoutLeadership(t *testing.T) {
	// 永远抢不到锁的竞选者在 ctx 结束后必须退出，不得执行 callback。
	fake := &fakeLock{failures: int(^uint(0) >> 1)}
	elector := NewLeaderElector(fake, "docstore:leader:pipeline", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		elector.Campaign(ctx, func(context.Context) {
			t.Error("callback ran without leadership")
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("campaign did not exit")
	}
	assert.Empty(t, fake.released)
}
