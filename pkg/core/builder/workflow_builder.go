package builder

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/stevelan1995/workflow-engine/pkg/core/branch"
	"github.com/stevelan1995/workflow-engine/pkg/core/resource"
	"github.com/stevelan1995/workflow-engine/pkg/core/task"
	"github.com/stevelan1995/workflow-engine/pkg/core/workflow"
)

// resourceLimitsNone 零值容量表示跳过容量校验
var resourceLimitsNone resource.Limits

// WorkflowBuilder 工作流定义构建器（对外导出）
// 任务、分支按添加顺序记录，声明顺序决定串行模式下的执行顺序
type WorkflowBuilder struct {
	wf       *workflow.Workflow
	registry *task.FunctionRegistry
	errs     []error
}

// NewWorkflowBuilder 创建工作流构建器（对外导出）
func NewWorkflowBuilder(name, description string, registry *task.FunctionRegistry) *WorkflowBuilder {
	if registry == nil {
		panic("registry不能为nil，WorkflowBuilder必须使用registry")
	}
	return &WorkflowBuilder{
		wf:       workflow.NewWorkflow(name, description),
		registry: registry,
	}
}

// WithID 指定工作流ID（链式构建，对外导出）
// 不指定时使用随机UUID
func (b *WorkflowBuilder) WithID(id string) *WorkflowBuilder {
	if id == "" {
		id = uuid.New().String()
	}
	b.wf.ID = id
	return b
}

// Sequential 切换为串行模式，按声明顺序逐个执行（链式构建，对外导出）
func (b *WorkflowBuilder) Sequential() *WorkflowBuilder {
	b.wf.Parallel = false
	return b
}

// WithTimeout 设置整次运行的超时秒数（链式构建，对外导出）
func (b *WorkflowBuilder) WithTimeout(seconds int) *WorkflowBuilder {
	b.wf.TimeoutSeconds = seconds
	return b
}

// WithParams 设置工作流级参数，任务级参数覆盖同名项（链式构建，对外导出）
func (b *WorkflowBuilder) WithParams(params map[string]interface{}) *WorkflowBuilder {
	b.wf.Params = params
	return b
}

// AddTask 添加已构建的任务定义（链式构建，对外导出）
func (b *WorkflowBuilder) AddTask(spec *workflow.TaskSpec) *WorkflowBuilder {
	if err := b.wf.AddTask(spec); err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Task 以内联方式构建并添加任务（链式构建，对外导出）
func (b *WorkflowBuilder) Task(id, name string, configure func(*TaskBuilder)) *WorkflowBuilder {
	tb := NewTaskBuilder(id, name, b.registry)
	if configure != nil {
		configure(tb)
	}
	spec, err := tb.Build()
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	return b.AddTask(spec)
}

// If 添加二选一分支（链式构建，对外导出）
func (b *WorkflowBuilder) If(branchID string, dependsOn []string, cond branch.Condition, thenTasks, elseTasks []string) *WorkflowBuilder {
	return b.addBranch(&branch.Spec{
		ID:        branchID,
		Type:      branch.TypeIf,
		DependsOn: dependsOn,
		If:        &branch.IfSpec{Condition: cond, Then: thenTasks, Else: elseTasks},
	})
}

// Switch 添加多路分支（链式构建，对外导出）
func (b *WorkflowBuilder) Switch(branchID string, dependsOn []string, field string, cases []branch.SwitchCase, defaultTasks []string) *WorkflowBuilder {
	return b.addBranch(&branch.Spec{
		ID:        branchID,
		Type:      branch.TypeSwitch,
		DependsOn: dependsOn,
		Switch:    &branch.SwitchSpec{Field: field, Cases: cases, Default: defaultTasks},
	})
}

// Loop 添加循环分支（链式构建，对外导出）
func (b *WorkflowBuilder) Loop(branchID string, dependsOn []string, body []string, breakWhen branch.Condition, maxIterations int) *WorkflowBuilder {
	return b.addBranch(&branch.Spec{
		ID:        branchID,
		Type:      branch.TypeLoop,
		DependsOn: dependsOn,
		Loop:      &branch.LoopSpec{Body: body, BreakWhen: breakWhen, MaxIterations: maxIterations},
	})
}

func (b *WorkflowBuilder) addBranch(spec *branch.Spec) *WorkflowBuilder {
	if err := b.wf.AddBranch(spec); err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Build 产出工作流定义（对外导出）
// 结构性校验在这里完成；资源容量校验由引擎在注册时执行
func (b *WorkflowBuilder) Build() (*workflow.Workflow, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("工作流构建失败: %v", b.errs[0])
	}
	if err := b.wf.Validate(resourceLimitsNone); err != nil {
		return nil, err
	}
	return b.wf, nil
}
