package async

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer 并发安全的日志缓冲。
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func TestRunnerRecoversPanic(t *testing.T) {
	buf := &syncBuffer{}
	runner := &defaultRunner{logger: slog.New(slog.NewJSONHandler(buf, nil))}

	runner.Go(func() { panic("boom") })

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(buf.String()), []byte("panic recovered"))
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, buf.String(), "boom")
}

func TestGoWithContextPassesContext(t *testing.T) {
	type ctxKey struct{}

	runner := &defaultRunner{logger: slog.Default()}
	ctx := context.WithValue(context.Background(), ctxKey{}, "payload")

	got := make(chan any, 1)
	runner.GoWithContext(ctx, func(ctx context.Context) {
		got <- ctx.Value(ctxKey{})
	})

	select {
	case value := <-got:
		assert.Equal(t, "payload", value)
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine never ran")
	}
}

func TestSafeGoSurvivesPanickingTask(t *testing.T) {
	done := make(chan struct{})
	SafeGo(func() {
		defer close(done)
		panic("ignored")
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("panicking task never finished")
	}

	// 后续任务照常调度。
	ran := make(chan struct{})
	SafeGo(func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("follow-up task never ran")
	}
}

func TestRunGroupReturnsFirstError(t *testing.T) {
	wantErr := errors.New("projection rebuild failed")

	var group RunGroup
	group.Go(func() error { return nil })
	group.Go(func() error { return wantErr })

	require.ErrorIs(t, group.Wait(), wantErr)
}

// 组内任务 panic 被吞掉并计入完成，Wait 不会卡死也不报错。
func TestRunGroupSwallowsPanic(t *testing.T) {
	var group RunGroup
	group.Go(func() error { panic("boom") })
	group.Go(func() error { return nil })

	require.NoError(t, group.Wait())
}

func TestFutureGet(t *testing.T) {
	future := NewFuture(func(ctx context.Context) (int, error) {
		return 42, nil
	})

	got, err := future.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	// 重复取值返回同一结果。
	again, err := future.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, again)
}

func TestFuturePropagatesError(t *testing.T) {
	wantErr := errors.New("fetch failed")
	future := NewFuture(func(ctx context.Context) (string, error) {
		return "", wantErr
	})

	_, err := future.Get(context.Background())
	require.ErrorIs(t, err, wantErr)
}

func TestFutureGetHonorsContext(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	future := NewFuture(func(ctx context.Context) (int, error) {
		<-release

		return 1, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := future.Get(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
