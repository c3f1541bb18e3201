package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/stevelan1995/workflow-engine/pkg/config"
	"github.com/stevelan1995/workflow-engine/pkg/core/events"
	"github.com/stevelan1995/workflow-engine/pkg/core/executor"
	"github.com/stevelan1995/workflow-engine/pkg/core/resource"
	"github.com/stevelan1995/workflow-engine/pkg/core/task"
	"github.com/stevelan1995/workflow-engine/pkg/core/workflow"
	"github.com/stevelan1995/workflow-engine/pkg/storage"
)

// Engine 工作流引擎门面（对外导出）
// 聚合执行器、资源池、函数注册中心、定时调度器与可选的持久化、事件总线
type Engine struct {
	mu         sync.RWMutex
	cfg        *config.Config
	registry   *task.FunctionRegistry
	pool       *resource.Pool
	exec       *executor.Executor
	dispatcher executor.Dispatcher
	repo       storage.RunRepository
	bus        *events.Bus
	scheduler  *CronScheduler
	workflows  map[string]*workflow.Workflow
	runs       map[string]*runHandle
	runSem     chan struct{} // 运行级并发上限
	wg         sync.WaitGroup
	stopped    bool
}

// runHandle 运行句柄（内部结构）
type runHandle struct {
	run    *workflow.Run
	cancel context.CancelFunc
}

// Option 引擎可选配置（对外导出）
type Option func(*Engine)

// WithRepository 启用运行记录持久化（对外导出）
func WithRepository(repo storage.RunRepository) Option {
	return func(e *Engine) { e.repo = repo }
}

// WithEventBus 启用事件总线（对外导出）
func WithEventBus(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithDispatcher 替换任务派发器（对外导出）
// 传入集群协调器即可切换为分布式执行，运行结果形态不变
func WithDispatcher(d executor.Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// NewEngine 创建引擎实例（对外导出）
func NewEngine(cfg *config.Config, registry *task.FunctionRegistry, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if registry == nil {
		registry = task.NewFunctionRegistry()
	}

	e := &Engine{
		cfg:       cfg,
		registry:  registry,
		workflows: make(map[string]*workflow.Workflow),
		runs:      make(map[string]*runHandle),
	}
	for _, opt := range opts {
		opt(e)
	}

	maxWorkflows := cfg.Engine.MaxConcurrentWorkflows
	if maxWorkflows <= 0 {
		maxWorkflows = 10
	}
	e.runSem = make(chan struct{}, maxWorkflows)

	e.pool = resource.NewPool(resource.Limits{
		CPUCores:        cfg.Resources.CPUCores,
		MemoryMB:        cfg.Resources.MemoryMB,
		GPUDevices:      cfg.Resources.GPUDevices,
		ConcurrentSlots: cfg.Resources.ConcurrentSlots,
	})

	if e.dispatcher == nil {
		e.dispatcher = executor.NewLocalDispatcher(registry)
	}

	exec, err := executor.NewExecutor(cfg.Engine.MaxConcurrentTasks, e.pool, e.dispatcher,
		executor.WithDefaultTaskTimeout(cfg.Engine.DefaultTimeoutSecs),
		executor.WithResourceWait(cfg.Engine.ResourceWaitSecs),
		executor.WithEventSink(e.onTaskEvent))
	if err != nil {
		return nil, err
	}
	e.exec = exec

	e.scheduler = NewCronScheduler(func(workflowID string) (string, error) {
		return e.SubmitByID(context.Background(), workflowID)
	})

	return e, nil
}

// Registry 返回函数注册中心（对外导出）
func (e *Engine) Registry() *task.FunctionRegistry { return e.registry }

// Pool 返回资源池（对外导出）
func (e *Engine) Pool() *resource.Pool { return e.pool }

// Scheduler 返回定时调度器（对外导出）
func (e *Engine) Scheduler() *CronScheduler { return e.scheduler }

// Start 启动引擎（对外导出）
func (e *Engine) Start() {
	e.scheduler.Start()
	log.Printf("✅ 工作流引擎已启动: 最大并发运行=%d, 最大并发任务=%d",
		cap(e.runSem), e.cfg.Engine.MaxConcurrentTasks)
}

// Stop 优雅关闭引擎（对外导出）
// 等待在途运行最多30秒
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	e.scheduler.Stop()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("Engine: 所有运行已完成")
	case <-time.After(30 * time.Second):
		log.Println("Engine: 关闭超时，取消剩余运行")
		e.mu.RLock()
		for _, h := range e.runs {
			if !h.run.GetStatus().IsTerminal() {
				h.cancel()
			}
		}
		e.mu.RUnlock()
		e.wg.Wait()
	}

	e.pool.Close()
	if e.bus != nil {
		e.bus.Close()
	}
	if e.repo != nil {
		e.repo.Close()
	}
	log.Println("✅ 工作流引擎已关闭")
}

// RegisterWorkflow 注册工作流定义（对外导出）
// 注册时即做全量校验，便于尽早暴露定义错误
func (e *Engine) RegisterWorkflow(wf *workflow.Workflow) error {
	if err := wf.Validate(e.pool.Limits()); err != nil {
		return err
	}
	e.applyDefaults(wf)
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.workflows[wf.ID]; exists {
		return fmt.Errorf("工作流 %s 已注册", wf.ID)
	}
	e.workflows[wf.ID] = wf
	log.Printf("✅ [引擎] 已注册工作流: ID=%s, Name=%s, 任务数=%d", wf.ID, wf.Name, len(wf.Tasks))
	return nil
}

// UnregisterWorkflow 注销工作流定义（对外导出）
func (e *Engine) UnregisterWorkflow(workflowID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.workflows, workflowID)
}

// GetWorkflow 查询已注册的工作流定义（对外导出）
func (e *Engine) GetWorkflow(workflowID string) (*workflow.Workflow, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	wf, ok := e.workflows[workflowID]
	return wf, ok
}

// Workflows 列出已注册的工作流定义（对外导出）
func (e *Engine) Workflows() []*workflow.Workflow {
	e.mu.RLock()
	defer e.mu.RUnlock()
	list := make([]*workflow.Workflow, 0, len(e.workflows))
	for _, wf := range e.workflows {
		list = append(list, wf)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// applyDefaults 为未声明的任务字段套用引擎级默认值（内部方法）
func (e *Engine) applyDefaults(wf *workflow.Workflow) {
	for _, spec := range wf.Tasks {
		if spec.TimeoutSeconds <= 0 {
			spec.TimeoutSeconds = e.cfg.Engine.DefaultTimeoutSecs
		}
		if e.cfg.Engine.EnableRetry {
			if spec.MaxRetries == 0 {
				spec.MaxRetries = e.cfg.Engine.MaxRetries
			}
			if spec.RetryDelaySeconds == 0 {
				spec.RetryDelaySeconds = e.cfg.Engine.RetryDelaySecs
			}
		} else {
			spec.MaxRetries = 0
		}
	}
}

// SubmitWorkflow 异步提交一次运行（对外导出）
// 返回运行ID；进度与结果通过GetRun查询
func (e *Engine) SubmitWorkflow(ctx context.Context, wf *workflow.Workflow) (string, error) {
	e.mu.RLock()
	_, registered := e.workflows[wf.ID]
	stopped := e.stopped
	e.mu.RUnlock()
	if stopped {
		return "", fmt.Errorf("引擎已关闭")
	}
	if !registered {
		if err := wf.Validate(e.pool.Limits()); err != nil {
			return "", err
		}
		e.applyDefaults(wf)
	}

	run := workflow.NewRun(wf)
	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.runs[run.ID] = &runHandle{run: run, cancel: cancel}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()

		// 运行级并发上限
		select {
		case e.runSem <- struct{}{}:
		case <-runCtx.Done():
			run.SetStatus(workflow.StatusCancelled, "提交后尚未开始即被取消")
			e.persist(run)
			return
		}
		defer func() { <-e.runSem }()

		e.publishRunEvent(events.WorkflowStarted, run)
		e.persist(run)

		if err := e.exec.Execute(runCtx, wf, run); err != nil {
			log.Printf("❌ [引擎] 运行异常: RunID=%s, err=%v", run.ID, err)
		}

		switch run.GetStatus() {
		case workflow.StatusSucceeded:
			e.publishRunEvent(events.WorkflowCompleted, run)
		case workflow.StatusFailed:
			e.publishRunEvent(events.WorkflowFailed, run)
		case workflow.StatusCancelled:
			e.publishRunEvent(events.WorkflowCancelled, run)
		}
		e.persist(run)
	}()

	return run.ID, nil
}

// SubmitByID 按已注册的工作流ID提交一次运行（对外导出）
// 定时调度器与HTTP接口使用此入口
func (e *Engine) SubmitByID(ctx context.Context, workflowID string) (string, error) {
	return e.SubmitByIDWithParams(ctx, workflowID, nil)
}

// SubmitByIDWithParams 提交一次运行并覆盖工作流级参数（对外导出）
// 覆盖只作用于本次运行，注册的定义保持不变
func (e *Engine) SubmitByIDWithParams(ctx context.Context, workflowID string, params map[string]interface{}) (string, error) {
	wf, ok := e.GetWorkflow(workflowID)
	if !ok {
		return "", fmt.Errorf("工作流 %s 未注册", workflowID)
	}
	if len(params) > 0 {
		copied := *wf
		merged := make(map[string]interface{}, len(wf.Params)+len(params))
		for k, v := range wf.Params {
			merged[k] = v
		}
		for k, v := range params {
			merged[k] = v
		}
		copied.Params = merged
		wf = &copied
	}
	return e.SubmitWorkflow(ctx, wf)
}

// ExecuteWorkflow 同步执行一次运行，阻塞直到终态（对外导出）
func (e *Engine) ExecuteWorkflow(ctx context.Context, wf *workflow.Workflow) (*workflow.RunSnapshot, error) {
	runID, err := e.SubmitWorkflow(ctx, wf)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	h := e.runs[runID]
	e.mu.RUnlock()
	for !h.run.GetStatus().IsTerminal() {
		select {
		case <-ctx.Done():
			h.cancel()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return h.run.Snapshot(), nil
}

// GetRun 查询运行状态（对外导出）
// 内存中不存在时回退到持久化仓储
func (e *Engine) GetRun(ctx context.Context, runID string) (*workflow.RunSnapshot, error) {
	e.mu.RLock()
	h, ok := e.runs[runID]
	e.mu.RUnlock()
	if ok {
		return h.run.Snapshot(), nil
	}
	if e.repo != nil {
		return e.repo.GetRun(ctx, runID)
	}
	return nil, storage.ErrRunNotFound
}

// ListRuns 列出运行（对外导出）
func (e *Engine) ListRuns(ctx context.Context, workflowID string) ([]*workflow.RunSnapshot, error) {
	if e.repo != nil {
		return e.repo.ListRuns(ctx, workflowID, 0)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	snaps := make([]*workflow.RunSnapshot, 0, len(e.runs))
	for _, h := range e.runs {
		snap := h.run.Snapshot()
		if workflowID == "" || snap.WorkflowID == workflowID {
			snaps = append(snaps, snap)
		}
	}
	return snaps, nil
}

// CancelRun 取消一次运行（对外导出）
// 未终态任务标记为Cancelled，在途任务收到取消信号
func (e *Engine) CancelRun(runID string) error {
	e.mu.RLock()
	h, ok := e.runs[runID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("运行 %s 不存在", runID)
	}
	if h.run.GetStatus().IsTerminal() {
		return fmt.Errorf("运行 %s 已结束", runID)
	}
	h.cancel()
	log.Printf("⚠️ [引擎] 已请求取消运行: RunID=%s", runID)
	return nil
}

// ScheduleCron 为已注册的工作流添加定时调度（对外导出）
func (e *Engine) ScheduleCron(jobID, workflowID, expr string) (*CronJob, error) {
	if _, ok := e.GetWorkflow(workflowID); !ok {
		return nil, fmt.Errorf("工作流 %s 未注册", workflowID)
	}
	return e.scheduler.Schedule(jobID, workflowID, expr)
}

// UnscheduleCron 移除定时调度（对外导出）
func (e *Engine) UnscheduleCron(jobID string) error {
	return e.scheduler.Unschedule(jobID)
}

// onTaskEvent 任务状态事件回调（内部方法）
// 负责事件发布与持久化，两者都是尽力而为，失败不影响运行
func (e *Engine) onTaskEvent(ev *executor.TaskStatusEvent) {
	if e.bus != nil {
		eventType := ""
		switch ev.Status {
		case workflow.TaskRunning:
			eventType = events.TaskStarted
		case workflow.TaskSucceeded:
			eventType = events.TaskSucceeded
		case workflow.TaskFailed:
			eventType = events.TaskFailed
		case workflow.TaskSkipped:
			eventType = events.TaskSkipped
		}
		if eventType != "" {
			errMsg := ""
			if ev.Err != nil {
				errMsg = ev.Err.Error()
			}
			e.bus.Publish(&events.Event{
				Type:       eventType,
				RunID:      ev.RunID,
				WorkflowID: ev.WorkflowID,
				TaskID:     ev.TaskID,
				InstanceID: ev.InstanceID,
				Status:     string(ev.Status),
				Error:      errMsg,
				Timestamp:  ev.Timestamp,
				Payload:    ev.Output,
			})
		}
	}

	if e.repo != nil && ev.Status.IsTerminal() {
		e.mu.RLock()
		h, ok := e.runs[ev.RunID]
		e.mu.RUnlock()
		if ok {
			e.persist(h.run)
		}
	}
}

// publishRunEvent 发布运行级事件（内部方法）
func (e *Engine) publishRunEvent(eventType string, run *workflow.Run) {
	if e.bus == nil {
		return
	}
	snap := run.Snapshot()
	e.bus.Publish(&events.Event{
		Type:       eventType,
		RunID:      snap.ID,
		WorkflowID: snap.WorkflowID,
		Status:     string(snap.Status),
		Error:      snap.Error,
	})
}

// persist 尽力而为地保存运行快照（内部方法）
func (e *Engine) persist(run *workflow.Run) {
	if e.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.repo.SaveRun(ctx, run.Snapshot()); err != nil {
		log.Printf("⚠️ [引擎] 持久化运行失败: RunID=%s, err=%v", run.ID, err)
	}
}
