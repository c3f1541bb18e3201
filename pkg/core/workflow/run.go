package workflow

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskExecution 任务实例的运行时状态（对外导出）
// 循环体任务每轮迭代产生新实例，InstanceID带迭代序号后缀
type TaskExecution struct {
	InstanceID string                 `json:"instance_id"`
	TaskID     string                 `json:"task_id"` // 对应的任务定义ID
	Iteration  int                    `json:"iteration,omitempty"`
	Status     TaskStatus             `json:"status"`
	Attempts   int                    `json:"attempts"`
	Output     map[string]interface{} `json:"output,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StartTime  *time.Time             `json:"start_time,omitempty"`
	EndTime    *time.Time             `json:"end_time,omitempty"`
}

// Run 工作流的一次运行（对外导出）
// 状态变更全部经由方法进行，内部加锁保证API层并发读取安全
type Run struct {
	mu           sync.RWMutex
	ID           string                    `json:"id"`
	WorkflowID   string                    `json:"workflow_id"`
	WorkflowName string                    `json:"workflow_name"`
	Status       Status                    `json:"status"`
	Tasks        map[string]*TaskExecution `json:"tasks"` // InstanceID -> 执行状态
	Context      map[string]interface{}    `json:"context"`
	contextOrder []string                  // 输出写入顺序，保证求值上下文的确定性
	Error        string                    `json:"error,omitempty"`
	CreateTime   time.Time                 `json:"create_time"`
	StartTime    *time.Time                `json:"start_time,omitempty"`
	EndTime      *time.Time                `json:"end_time,omitempty"`
}

// NewRun 创建运行实例（对外导出）
func NewRun(wf *Workflow) *Run {
	return &Run{
		ID:           uuid.New().String(),
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		Status:       StatusPending,
		Tasks:        make(map[string]*TaskExecution),
		Context:      make(map[string]interface{}),
		CreateTime:   time.Now(),
	}
}

// AddTaskExecution 登记一个任务实例（对外导出）
func (r *Run) AddTaskExecution(exec *TaskExecution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Tasks[exec.InstanceID] = exec
}

// TaskExecution 按实例ID查找（对外导出）
func (r *Run) TaskExecution(instanceID string) (*TaskExecution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.Tasks[instanceID]
	return exec, ok
}

// SetTaskStatus 更新任务实例状态并维护时间戳（对外导出）
func (r *Run) SetTaskStatus(instanceID string, status TaskStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exec, ok := r.Tasks[instanceID]
	if !ok {
		return
	}
	now := time.Now()
	if status == TaskRunning && exec.StartTime == nil {
		exec.StartTime = &now
	}
	if status.IsTerminal() && exec.EndTime == nil {
		exec.EndTime = &now
	}
	exec.Status = status
}

// SetTaskResult 记录任务实例的产出或错误（对外导出）
// 成功时将输出以任务定义ID为键写入运行上下文，循环迭代覆盖前一轮
func (r *Run) SetTaskResult(instanceID string, output map[string]interface{}, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exec, ok := r.Tasks[instanceID]
	if !ok {
		return
	}
	exec.Output = output
	exec.Error = errMsg
	if errMsg == "" {
		if _, seen := r.Context[exec.TaskID]; !seen {
			r.contextOrder = append(r.contextOrder, exec.TaskID)
		}
		if output == nil {
			r.Context[exec.TaskID] = map[string]interface{}{}
		} else {
			r.Context[exec.TaskID] = output
		}
	}
}

// SetTaskAttempts 记录尝试次数（对外导出）
func (r *Run) SetTaskAttempts(instanceID string, attempts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if exec, ok := r.Tasks[instanceID]; ok && attempts > 0 {
		exec.Attempts = attempts
	}
}

// SetStatus 更新运行状态并维护时间戳（对外导出）
func (r *Run) SetStatus(status Status, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if status == StatusRunning && r.StartTime == nil {
		r.StartTime = &now
	}
	if status.IsTerminal() && r.EndTime == nil {
		r.EndTime = &now
	}
	r.Status = status
	if errMsg != "" {
		r.Error = errMsg
	}
}

// GetStatus 读取当前运行状态（对外导出）
func (r *Run) GetStatus() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// Output 读取某个任务定义当前在上下文中的输出（对外导出）
func (r *Run) Output(taskID string) (map[string]interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.Context[taskID]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return m, ok
}

// EvalContext 构造条件求值上下文（对外导出）
// 包含 任务ID -> 输出map 的嵌套结构，同时把各任务输出的字段
// 按写入顺序平铺到顶层，后完成的任务覆盖同名字段
func (r *Run) EvalContext() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctx := make(map[string]interface{}, len(r.Context)*2)
	for _, taskID := range r.contextOrder {
		output := r.Context[taskID]
		ctx[taskID] = output
		if m, ok := output.(map[string]interface{}); ok {
			for k, v := range m {
				ctx[k] = v
			}
		}
	}
	return ctx
}

// Progress 返回（终态实例数，总实例数）（对外导出）
func (r *Run) Progress() (int, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	done := 0
	for _, exec := range r.Tasks {
		if exec.Status.IsTerminal() {
			done++
		}
	}
	return done, len(r.Tasks)
}

// Snapshot 返回运行状态的深拷贝，用于API响应与持久化（对外导出）
func (r *Run) Snapshot() *RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := &RunSnapshot{
		ID:           r.ID,
		WorkflowID:   r.WorkflowID,
		WorkflowName: r.WorkflowName,
		Status:       r.Status,
		Tasks:        make(map[string]TaskExecution, len(r.Tasks)),
		Context:      make(map[string]interface{}, len(r.Context)),
		Error:        r.Error,
		CreateTime:   r.CreateTime,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
	}
	for id, exec := range r.Tasks {
		snap.Tasks[id] = *exec
	}
	for k, v := range r.Context {
		snap.Context[k] = v
	}
	return snap
}

// RunSnapshot 运行状态的只读快照（对外导出）
type RunSnapshot struct {
	ID           string                   `json:"id"`
	WorkflowID   string                   `json:"workflow_id"`
	WorkflowName string                   `json:"workflow_name"`
	Status       Status                   `json:"status"`
	Tasks        map[string]TaskExecution `json:"tasks"`
	Context      map[string]interface{}   `json:"context"`
	Error        string                   `json:"error,omitempty"`
	CreateTime   time.Time                `json:"create_time"`
	StartTime    *time.Time               `json:"start_time,omitempty"`
	EndTime      *time.Time               `json:"end_time,omitempty"`
}
