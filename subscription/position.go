package subscription

import "context"

// PositionStore 持久化消费者在全局事件流中的提交位置。
// 位置在事件处理副作用完成后逐条提交，故下游处理器必须幂等：
// 崩溃恢复后同一事件可能被重复投递一次。
type PositionStore interface {
	// Load 返回消费者最近提交的位置，从未提交过时返回 0。
	Load(ctx context.Context, consumer string) (int64, error)
	// Commit 记录消费者已处理完的位置。
	Commit(ctx context.Context, consumer string, position int64) error
}
