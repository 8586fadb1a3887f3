// 生成摘要:
// 1) 运维端远程日志直写：按批量或定时间隔把 JSON 日志行推送到收集端。
// 2) 发送失败只告警不重试，日志旁路永不阻塞事件处理主流程。
// 假设:
// 1) 收集端接受 application/x-ndjson，鉴权为 Bearer Token。
package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// RemoteConfig 远程日志写入配置。
type RemoteConfig struct {
	Enabled       bool
	Endpoint      string
	AuthToken     string
	Timeout       time.Duration
	BatchSize     int
	BufferSize    int
	FlushInterval time.Duration
	DropOnFull    bool
}

type remoteWriter struct {
	endpoint      string
	authToken     string
	timeout       time.Duration
	batchSize     int
	flushInterval time.Duration
	dropOnFull    bool

	queue   chan []byte
	stopCh  chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Int64
	closed  atomic.Bool
	client  *http.Client
	logger  *slog.Logger
}

// newRemoteWriter 启动后台发送协程，返回写入器与关闭函数。
// 自身的告警日志只走 stderr，避免远端故障时日志递归。
func newRemoteWriter(cfg RemoteConfig) (*remoteWriter, func() error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 200
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}

	w := &remoteWriter{
		endpoint:      cfg.Endpoint,
		authToken:     cfg.AuthToken,
		timeout:       timeout,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		dropOnFull:    cfg.DropOnFull,
		queue:         make(chan []byte, bufferSize),
		stopCh:        make(chan struct{}),
		client:        &http.Client{Timeout: timeout},
		logger:        slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}

	w.wg.Add(1)
	go w.loop()

	return w, w.close
}

// Write 把一条日志行入队。关闭后静默接受，满队列时按配置丢弃或阻塞。
func (w *remoteWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if w.closed.Load() {
		return len(p), nil
	}

	cp := make([]byte, len(p))
	copy(cp, p)

	if w.dropOnFull {
		select {
		case w.queue <- cp:
		default:
			w.dropped.Add(1)
		}
		return len(p), nil
	}

	w.queue <- cp
	return len(p), nil
}

func (w *remoteWriter) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	var batch [][]byte

	for {
		select {
		case item := <-w.queue:
			batch = append(batch, item)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			w.flush(batch)
			batch = batch[:0]
		case <-w.stopCh:
			w.flush(batch)
			if dropped := w.dropped.Load(); dropped > 0 {
				w.logger.Warn("remote log dropped messages", "count", dropped)
			}
			return
		}
	}
}

// flush 把积压的日志行拼为 NDJSON 一次送出。
func (w *remoteWriter) flush(batch [][]byte) {
	if len(batch) == 0 {
		return
	}

	var payload bytes.Buffer
	for _, item := range batch {
		payload.Write(bytes.TrimRight(item, "\n"))
		payload.WriteByte('\n')
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(payload.Bytes()))
	if err != nil {
		w.logger.Warn("remote log request build failed", "error", err)
		return
	}

	req.Header.Set("Content-Type", "application/x-ndjson")
	if w.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+w.authToken)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("remote log request failed", "error", err)
		return
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		w.logger.Warn("remote log request returned non-2xx", "status", resp.Status)
	}
}

func (w *remoteWriter) close() error {
	w.closed.Store(true)
	close(w.stopCh)
	w.wg.Wait()
	return nil
}
