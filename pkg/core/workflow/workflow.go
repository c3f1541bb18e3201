package workflow

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/stevelan1995/workflow-engine/pkg/core/branch"
	"github.com/stevelan1995/workflow-engine/pkg/core/resource"
)

// Status 工作流运行状态（对外导出）
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal 判断是否为终态
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// TaskStatus 任务实例状态（对外导出）
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskReady     TaskStatus = "READY"
	TaskRunning   TaskStatus = "RUNNING"
	TaskSucceeded TaskStatus = "SUCCEEDED"
	TaskFailed    TaskStatus = "FAILED"
	TaskSkipped   TaskStatus = "SKIPPED"
	TaskCancelled TaskStatus = "CANCELLED"
)

// IsTerminal 判断任务是否为终态
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskSucceeded, TaskFailed, TaskSkipped, TaskCancelled:
		return true
	}
	return false
}

// TaskSpec 任务定义（对外导出）
// HandlerName在调度时通过函数注册中心解析，定义本身不持有函数引用
type TaskSpec struct {
	ID                string                 `json:"id" yaml:"id"`
	Name              string                 `json:"name" yaml:"name"`
	Description       string                 `json:"description,omitempty" yaml:"description,omitempty"`
	HandlerName       string                 `json:"handler_name" yaml:"handler_name"`
	Params            map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
	DependsOn         []string               `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Requirements      resource.Requirements  `json:"requirements,omitempty" yaml:"requirements,omitempty"`
	TimeoutSeconds    int                    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	MaxRetries        int                    `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	RetryDelaySeconds int                    `json:"retry_delay_seconds,omitempty" yaml:"retry_delay_seconds,omitempty"`
	ContinueOnError   bool                   `json:"continue_on_error,omitempty" yaml:"continue_on_error,omitempty"`
}

// Workflow 工作流定义（对外导出）
// 构建完成后不可变，运行状态全部记录在WorkflowRun中
type Workflow struct {
	ID             string                 `json:"id" yaml:"id"`
	Name           string                 `json:"name" yaml:"name"`
	Description    string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Tasks          map[string]*TaskSpec   `json:"tasks" yaml:"tasks"`
	TaskOrder      []string               `json:"task_order" yaml:"task_order"` // 声明顺序，串行模式与排序稳定性依赖它
	Branches       []*branch.Spec         `json:"branches,omitempty" yaml:"branches,omitempty"`
	Parallel       bool                   `json:"parallel" yaml:"parallel"`
	TimeoutSeconds int                    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	Params         map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
}

// NewWorkflow 创建工作流定义（对外导出）
func NewWorkflow(name, description string) *Workflow {
	return &Workflow{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Tasks:       make(map[string]*TaskSpec),
		TaskOrder:   make([]string, 0),
		Parallel:    true,
	}
}

// AddTask 添加任务定义（对外导出）
func (w *Workflow) AddTask(spec *TaskSpec) error {
	if spec == nil {
		return fmt.Errorf("任务定义不能为空")
	}
	if spec.ID == "" {
		return fmt.Errorf("任务ID不能为空")
	}
	if _, exists := w.Tasks[spec.ID]; exists {
		return fmt.Errorf("任务 %s 已存在", spec.ID)
	}
	w.Tasks[spec.ID] = spec
	w.TaskOrder = append(w.TaskOrder, spec.ID)
	return nil
}

// AddBranch 添加分支定义（对外导出）
func (w *Workflow) AddBranch(spec *branch.Spec) error {
	if spec == nil {
		return fmt.Errorf("分支定义不能为空")
	}
	for _, b := range w.Branches {
		if b.ID == spec.ID {
			return fmt.Errorf("分支 %s 已存在", spec.ID)
		}
	}
	w.Branches = append(w.Branches, spec)
	return nil
}

// GetTask 按ID查找任务定义（对外导出）
func (w *Workflow) GetTask(id string) (*TaskSpec, bool) {
	spec, ok := w.Tasks[id]
	return spec, ok
}

// LoopBodyTasks 返回所有循环体任务的ID集合（对外导出）
// 循环体任务不参与初始实例化，由循环迭代按轮创建
func (w *Workflow) LoopBodyTasks() map[string]string {
	body := make(map[string]string)
	for _, b := range w.Branches {
		if b.Type == branch.TypeLoop && b.Loop != nil {
			for _, id := range b.Loop.Body {
				body[id] = b.ID
			}
		}
	}
	return body
}
