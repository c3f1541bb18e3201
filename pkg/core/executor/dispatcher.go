package executor

import (
	"fmt"
	"time"

	"github.com/stevelan1995/workflow-engine/pkg/core/task"
	"github.com/stevelan1995/workflow-engine/pkg/core/workflow"
)

// Dispatcher 任务派发接口（对外导出）
// 本地执行与集群执行实现同一接口，上层对部署形态无感知
type Dispatcher interface {
	// Dispatch 执行单个任务实例并返回输出
	// 实现必须遵守taskCtx的超时与取消信号
	Dispatch(taskCtx *task.Context, spec *workflow.TaskSpec) (map[string]interface{}, error)
}

// LocalDispatcher 本地派发器（对外导出）
// 直接在当前进程的函数注册中心解析并调用处理函数
type LocalDispatcher struct {
	registry *task.FunctionRegistry
}

// NewLocalDispatcher 创建本地派发器（对外导出）
func NewLocalDispatcher(registry *task.FunctionRegistry) *LocalDispatcher {
	return &LocalDispatcher{registry: registry}
}

// Dispatch 实现Dispatcher接口
func (d *LocalDispatcher) Dispatch(taskCtx *task.Context, spec *workflow.TaskSpec) (map[string]interface{}, error) {
	fn, ok := d.registry.Get(spec.HandlerName)
	if !ok {
		return nil, workflow.NewExecutionError(workflow.ErrKindHandler, spec.ID,
			fmt.Errorf("处理函数 %s 未注册", spec.HandlerName))
	}
	return fn(taskCtx)
}

// TaskStatusEvent 任务实例状态变更事件（对外导出）
// 通过事件回调通知引擎层做持久化与事件发布
type TaskStatusEvent struct {
	RunID      string
	WorkflowID string
	InstanceID string
	TaskID     string
	Iteration  int
	Status     workflow.TaskStatus
	Attempts   int
	Output     map[string]interface{}
	Err        error
	Timestamp  time.Time
	DurationMs int64
}

// EventSink 任务状态事件回调（对外导出）
// 回调在执行器的调度循环中同步触发，实现方不得阻塞
type EventSink func(*TaskStatusEvent)
