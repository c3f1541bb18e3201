package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stevelan1995/workflow-engine/pkg/core/resource"
	"github.com/stevelan1995/workflow-engine/pkg/core/workflow"
)

const (
	maxGlobalWorkers           = 1000 // 全局最大并发数上限
	defaultResourceWaitSeconds = 60   // 默认资源排队等待上限
	defaultTaskTimeoutSeconds  = 300  // 默认单任务超时
)

// Executor 工作流执行器（对外导出）
// 驱动单次运行的状态机：就绪判定、分支求值、并发控制、重试与超时
type Executor struct {
	maxWorkers          int
	workerPool          chan struct{} // 全局Worker池
	pool                *resource.Pool
	dispatcher          Dispatcher
	sink                EventSink
	resourceWaitSeconds int
	defaultTimeoutSecs  int
}

// Option 执行器可选配置（对外导出）
type Option func(*Executor)

// WithResourceWait 设置资源排队等待上限（对外导出）
func WithResourceWait(seconds int) Option {
	return func(e *Executor) {
		if seconds > 0 {
			e.resourceWaitSeconds = seconds
		}
	}
}

// WithDefaultTaskTimeout 设置未声明超时任务的默认超时（对外导出）
func WithDefaultTaskTimeout(seconds int) Option {
	return func(e *Executor) {
		if seconds > 0 {
			e.defaultTimeoutSecs = seconds
		}
	}
}

// WithEventSink 设置任务状态事件回调（对外导出）
func WithEventSink(sink EventSink) Option {
	return func(e *Executor) {
		e.sink = sink
	}
}

// NewExecutor 创建执行器实例（对外导出）
func NewExecutor(maxWorkers int, pool *resource.Pool, dispatcher Dispatcher, opts ...Option) (*Executor, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	if maxWorkers > maxGlobalWorkers {
		return nil, fmt.Errorf("最大并发数不能超过 %d", maxGlobalWorkers)
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("派发器不能为空")
	}
	e := &Executor{
		maxWorkers:          maxWorkers,
		workerPool:          make(chan struct{}, maxWorkers),
		pool:                pool,
		dispatcher:          dispatcher,
		resourceWaitSeconds: defaultResourceWaitSeconds,
		defaultTimeoutSecs:  defaultTaskTimeoutSeconds,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute 执行一次工作流运行，阻塞直到运行进入终态（对外导出）
// ctx取消或运行超时会将未完成任务标记为Cancelled
func (e *Executor) Execute(ctx context.Context, wf *workflow.Workflow, run *workflow.Run) error {
	runCtx := ctx
	var cancel context.CancelFunc
	if wf.TimeoutSeconds > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(wf.TimeoutSeconds)*time.Second)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	s := newRunState(e, wf, run)
	run.SetStatus(workflow.StatusRunning, "")
	log.Printf("🚀 [运行开始] RunID=%s, Workflow=%s, 任务数=%d", run.ID, wf.Name, len(wf.Tasks))

	for {
		// 反复推进直到没有新的状态变化
		for {
			changed := s.evaluateBranches()
			if s.schedule(runCtx) {
				changed = true
			}
			if !changed {
				break
			}
		}

		if s.settled() {
			break
		}

		if s.running == 0 {
			// 没有在途任务也没有可推进的状态，属于调度死锁（不应发生）
			s.cancelRemaining(workflow.TaskCancelled)
			run.SetStatus(workflow.StatusFailed, "调度停滞：存在无法就绪的任务")
			return fmt.Errorf("运行 %s 调度停滞", run.ID)
		}

		select {
		case ev := <-s.events:
			s.apply(ev)
		case <-runCtx.Done():
			s.cancelled = true
			s.cancelRemaining(workflow.TaskCancelled)
			// 等待在途任务响应取消信号后退出
			for s.running > 0 {
				s.apply(<-s.events)
			}
		}
		if s.cancelled {
			break
		}
	}

	return e.finish(runCtx, s)
}

// finish 推导运行终态（内部方法）
// 存在Cancelled实例的运行一律按取消结束，不会被判定为成功
func (e *Executor) finish(runCtx context.Context, s *runState) error {
	run := s.run
	if !s.cancelled {
		if runCtx.Err() != nil {
			s.cancelled = true
		} else {
			for _, id := range s.instOrder {
				if exec, ok := run.TaskExecution(id); ok && exec.Status == workflow.TaskCancelled {
					s.cancelled = true
					break
				}
			}
		}
	}
	if s.cancelled {
		reason := "运行被取消"
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			reason = fmt.Sprintf("运行超时（%d秒）", s.wf.TimeoutSeconds)
		}
		run.SetStatus(workflow.StatusCancelled, reason)
		log.Printf("⚠️ [运行取消] RunID=%s, 原因=%s", run.ID, reason)
		return nil
	}
	for _, id := range s.instOrder {
		inst := s.instances[id]
		exec, _ := run.TaskExecution(id)
		if exec.Status == workflow.TaskFailed && !inst.spec.ContinueOnError {
			run.SetStatus(workflow.StatusFailed, exec.Error)
			log.Printf("❌ [运行失败] RunID=%s, 失败任务=%s, 错误=%s", run.ID, id, exec.Error)
			return nil
		}
	}
	run.SetStatus(workflow.StatusSucceeded, "")
	log.Printf("✅ [运行成功] RunID=%s, Workflow=%s", run.ID, s.wf.Name)
	return nil
}

// launch 启动任务实例的执行协程（内部方法）
// Worker槽位与资源获取都在协程内进行，避免阻塞调度循环
func (e *Executor) launch(runCtx context.Context, s *runState, inst *instance) {
	spec := inst.spec
	go func() {
		start := time.Now()

		// 占用Worker槽位
		select {
		case e.workerPool <- struct{}{}:
		case <-runCtx.Done():
			s.events <- &taskEvent{instID: inst.id, status: workflow.TaskCancelled, err: runCtx.Err()}
			return
		}
		defer func() { <-e.workerPool }()

		// 原子化获取资源，排队超时视为资源不可用
		if e.pool != nil && !spec.Requirements.IsZero() {
			waitCtx, waitCancel := context.WithTimeout(runCtx, time.Duration(e.resourceWaitSeconds)*time.Second)
			err := e.pool.Acquire(waitCtx, spec.Requirements)
			waitCancel()
			if err != nil {
				if runCtx.Err() != nil {
					s.events <- &taskEvent{instID: inst.id, status: workflow.TaskCancelled, err: runCtx.Err()}
					return
				}
				s.events <- &taskEvent{
					instID:     inst.id,
					status:     workflow.TaskFailed,
					err:        workflow.NewExecutionError(workflow.ErrKindResourceUnavailable, spec.ID, err),
					durationMs: time.Since(start).Milliseconds(),
				}
				return
			}
			defer e.pool.Release(spec.Requirements)
		}

		s.events <- &taskEvent{instID: inst.id, status: workflow.TaskRunning}

		output, attempts, err := e.runWithRetry(runCtx, s, inst)
		duration := time.Since(start).Milliseconds()
		switch {
		case err == nil:
			s.events <- &taskEvent{instID: inst.id, status: workflow.TaskSucceeded, output: output, attempts: attempts, durationMs: duration}
		case runCtx.Err() != nil:
			s.events <- &taskEvent{instID: inst.id, status: workflow.TaskCancelled, attempts: attempts, err: err, durationMs: duration}
		default:
			s.events <- &taskEvent{instID: inst.id, status: workflow.TaskFailed, attempts: attempts, err: err, durationMs: duration}
		}
	}()
}

// runWithRetry 带重试地执行单个任务实例（内部方法）
// 总尝试次数 = 1 + MaxRetries；超时与处理函数错误都会触发重试
func (e *Executor) runWithRetry(runCtx context.Context, s *runState, inst *instance) (map[string]interface{}, int, error) {
	spec := inst.spec
	maxAttempts := 1 + spec.MaxRetries
	retryDelay := time.Duration(spec.RetryDelaySeconds) * time.Second
	if retryDelay <= 0 && spec.MaxRetries > 0 {
		retryDelay = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		output, err := e.runOnce(runCtx, s, inst, attempt)
		if err == nil {
			return output, attempt, nil
		}
		lastErr = err
		if runCtx.Err() != nil {
			return nil, attempt, lastErr
		}
		if attempt < maxAttempts {
			log.Printf("🔄 [准备重试] RunID=%s, Task=%s, 第%d次尝试失败: %v, 延迟=%v",
				s.run.ID, inst.id, attempt, err, retryDelay)
			select {
			case <-time.After(retryDelay):
			case <-runCtx.Done():
				return nil, attempt, lastErr
			}
		}
	}
	return nil, maxAttempts, lastErr
}

// runOnce 单次执行任务实例（内部方法）
func (e *Executor) runOnce(runCtx context.Context, s *runState, inst *instance, attempt int) (map[string]interface{}, error) {
	spec := inst.spec
	timeoutSecs := spec.TimeoutSeconds
	if timeoutSecs <= 0 {
		timeoutSecs = e.defaultTimeoutSecs
	}
	ctx, cancel := context.WithTimeout(runCtx, time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	taskCtx := s.newTaskContext(ctx, inst)
	log.Printf("📞 [调用处理函数] RunID=%s, Task=%s, Handler=%s, 尝试=%d",
		s.run.ID, inst.id, spec.HandlerName, attempt)

	output, err := e.dispatcher.Dispatch(taskCtx, spec)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && runCtx.Err() == nil {
			return nil, workflow.NewExecutionError(workflow.ErrKindTimeout, spec.ID,
				fmt.Errorf("任务执行超时（%d秒）", timeoutSecs))
		}
		if kind := workflow.KindOf(err); kind != workflow.ErrKindHandler {
			return nil, err
		}
		return nil, workflow.NewExecutionError(workflow.ErrKindHandler, spec.ID, err)
	}
	return output, nil
}
