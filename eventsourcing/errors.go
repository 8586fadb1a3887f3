package eventsourcing

import "errors"

// 事件溯源错误分类，调用方用 errors.Is 判定，禁止匹配错误文本。
var (
	// ErrValidation 命令入参非法，未产生任何事件。
	ErrValidation = errors.New("validation failed")
	// ErrVersionConflict 乐观并发冲突，期望版本与存储当前版本不一致。
	ErrVersionConflict = errors.New("version conflict")
	// ErrAggregateNotFound 聚合根不存在。
	ErrAggregateNotFound = errors.New("aggregate not found")
	// ErrInvalidOperation 聚合当前状态不允许该操作（例如已删除）。
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrUnknownEventType 折叠或注册表遇到未知事件类型。
	ErrUnknownEventType = errors.New("unknown event type")
)
