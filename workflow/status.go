package workflow

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidStatus 状态构造或校验失败。
var ErrInvalidStatus = errors.New("invalid workflow status")

// State 工作流运行状态。
type State string

const (
	// StatePending 已登记，尚未开始执行。
	StatePending State = "pending"
	// StateInProgress 执行中。
	StateInProgress State = "in_progress"
	// StateCompleted 成功结束。
	StateCompleted State = "completed"
	// StateFailed 失败结束。
	StateFailed State = "failed"
)

// Status 工作流运行状态的带标签联合：State 指明当前状态，
// 四个变体指针有且仅有与 State 对应的那个非空，每个变体只携带
// 该状态下有意义的字段。
type Status struct {
	State      State       `json:"state" bson:"state"`
	Pending    *Pending    `json:"pending,omitempty" bson:"pending,omitempty"`
	InProgress *InProgress `json:"in_progress,omitempty" bson:"in_progress,omitempty"`
	Completed  *Completed  `json:"completed,omitempty" bson:"completed,omitempty"`
	Failed     *Failed     `json:"failed,omitempty" bson:"failed,omitempty"`
}

// Pending 等待执行状态载荷。
type Pending struct {
	QueuedAt time.Time `json:"queued_at" bson:"queued_at"`
}

// InProgress 执行中状态载荷。
type InProgress struct {
	WorkflowID string    `json:"workflow_id" bson:"workflow_id"`
	Message    string    `json:"message,omitempty" bson:"message,omitempty"`
	Progress   float64   `json:"progress" bson:"progress"` // 取值范围 [0, 1]。
	StartedAt  time.Time `json:"started_at" bson:"started_at"`
}

// Completed 成功结束状态载荷，进度恒为 1。
type Completed struct {
	WorkflowID  string    `json:"workflow_id,omitempty" bson:"workflow_id,omitempty"`
	StartedAt   time.Time `json:"started_at" bson:"started_at"`
	CompletedAt time.Time `json:"completed_at" bson:"completed_at"`
}

// Failed 失败结束状态载荷，Message 必填。
type Failed struct {
	WorkflowID string    `json:"workflow_id,omitempty" bson:"workflow_id,omitempty"`
	Message    string    `json:"message" bson:"message"`
	FailedAt   time.Time `json:"failed_at" bson:"failed_at"`
}

// NewPending 创建等待执行状态。
func NewPending() Status {
	return Status{
		State:   StatePending,
		Pending: &Pending{QueuedAt: time.Now()},
	}
}

// NewInProgress 创建执行中状态，进度从 0 开始。
func NewInProgress(workflowID, message string) Status {
	return Status{
		State: StateInProgress,
		InProgress: &InProgress{
			WorkflowID: workflowID,
			Message:    message,
			StartedAt:  time.Now(),
		},
	}
}

// WithProgress 返回更新进度后的执行中状态副本。
func (s Status) WithProgress(progress float64) (Status, error) {
	if s.State != StateInProgress || s.InProgress == nil {
		return Status{}, fmt.Errorf("%w: progress only applies to in_progress state", ErrInvalidStatus)
	}
	if progress < 0 || progress > 1 {
		return Status{}, fmt.Errorf("%w: progress %v out of range [0, 1]", ErrInvalidStatus, progress)
	}

	next := *s.InProgress
	next.Progress = progress

	return Status{State: StateInProgress, InProgress: &next}, nil
}

// NewCompleted 创建成功结束状态，结束时间取当前时间。
func NewCompleted(workflowID string, startedAt time.Time) Status {
	return Status{
		State: StateCompleted,
		Completed: &Completed{
			WorkflowID:  workflowID,
			StartedAt:   startedAt,
			CompletedAt: time.Now(),
		},
	}
}

// NewFailed 创建失败结束状态，message 不能为空。
func NewFailed(workflowID, message string) (Status, error) {
	if message == "" {
		return Status{}, fmt.Errorf("%w: failed state requires a message", ErrInvalidStatus)
	}

	return Status{
		State: StateFailed,
		Failed: &Failed{
			WorkflowID: workflowID,
			Message:    message,
			FailedAt:   time.Now(),
		},
	}, nil
}

// IsTerminal 判断是否为终态。
func (s Status) IsTerminal() bool {
	return s.State == StateCompleted || s.State == StateFailed
}

// Elapsed 返回从开始到结束（执行中则到当前时间）的耗时。
// 状态不携带开始时间时第二个返回值为 false。
func (s Status) Elapsed() (time.Duration, bool) {
	switch s.State {
	case StateInProgress:
		if s.InProgress == nil {
			return 0, false
		}
		return time.Since(s.InProgress.StartedAt), true
	case StateCompleted:
		if s.Completed == nil {
			return 0, false
		}
		return s.Completed.CompletedAt.Sub(s.Completed.StartedAt), true
	default:
		return 0, false
	}
}

// Validate 校验联合的一致性：有且仅有与 State 对应的变体被设置，
// 变体内部约束（失败必有消息、进度范围、时间先后）同时成立。
// 反序列化得到的状态在使用前应通过该校验。
func (s Status) Validate() error {
	variants := 0
	if s.Pending != nil {
		variants++
	}
	if s.InProgress != nil {
		variants++
	}
	if s.Completed != nil {
		variants++
	}
	if s.Failed != nil {
		variants++
	}
	if variants != 1 {
		return fmt.Errorf("%w: expected exactly one variant, got %d", ErrInvalidStatus, variants)
	}

	switch s.State {
	case StatePending:
		if s.Pending == nil {
			return fmt.Errorf("%w: state %s without matching variant", ErrInvalidStatus, s.State)
		}
	case StateInProgress:
		if s.InProgress == nil {
			return fmt.Errorf("%w: state %s without matching variant", ErrInvalidStatus, s.State)
		}
		if s.InProgress.Progress < 0 || s.InProgress.Progress > 1 {
			return fmt.Errorf("%w: progress %v out of range [0, 1]", ErrInvalidStatus, s.InProgress.Progress)
		}
	case StateCompleted:
		if s.Completed == nil {
			return fmt.Errorf("%w: state %s without matching variant", ErrInvalidStatus, s.State)
		}
		if s.Completed.CompletedAt.Before(s.Completed.StartedAt) {
			return fmt.Errorf("%w: completed_at precedes started_at", ErrInvalidStatus)
		}
	case StateFailed:
		if s.Failed == nil {
			return fmt.Errorf("%w: state %s without matching variant", ErrInvalidStatus, s.State)
		}
		if s.Failed.Message == "" {
			return fmt.Errorf("%w: failed state requires a message", ErrInvalidStatus)
		}
	default:
		return fmt.Errorf("%w: unknown state %q", ErrInvalidStatus, s.State)
	}

	return nil
}
