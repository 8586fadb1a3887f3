// Package health 提供进程内各依赖的健康检查与就绪探针.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wyfcoding/docstore/database"

	"github.com/redis/go-redis/v9"
)

// Checker 定义健康检查函数原型。
type Checker func() error

// DBChecker 返回数据库健康检查函数。
func DBChecker(db *database.DB) Checker {
	return func() error {
		if db == nil {
			return errors.New("database is nil")
		}
		sqlDB, err := db.RawDB().DB()
		if err != nil {
			return fmt.Errorf("get sql.DB failed: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return sqlDB.PingContext(ctx)
	}
}

// RedisChecker 返回 Redis 健康检查函数。
func RedisChecker(client redis.UniversalClient) Checker {
	return func() error {
		if client == nil {
			return errors.New("redis client is nil")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return client.Ping(ctx).Err()
	}
}

// HTTPChecker 返回 HTTP 依赖健康检查函数。
func HTTPChecker(url string, timeout time.Duration) Checker {
	return func() error {
		if url == "" {
			return errors.New("health check url is empty")
		}
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("http health check status: %d", resp.StatusCode)
		}
		return nil
	}
}

// Handler 聚合多个依赖检查为一个就绪探针。
// 任一依赖失败时返回 503，响应体携带各依赖的检查结果。
func Handler(checkers map[string]Checker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := make(map[string]string, len(checkers))
		healthy := true

		for name, check := range checkers {
			if err := check(); err != nil {
				result[name] = err.Error()
				healthy = false
				slog.Warn("health check failed", "dependency", name, "error", err)
				continue
			}
			result[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(result)
	})
}
