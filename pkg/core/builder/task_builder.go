package builder

import (
	"fmt"
	"slices"

	"github.com/stevelan1995/workflow-engine/pkg/core/resource"
	"github.com/stevelan1995/workflow-engine/pkg/core/task"
	"github.com/stevelan1995/workflow-engine/pkg/core/workflow"
)

// TaskBuilder 任务定义构建器（对外导出）
type TaskBuilder struct {
	id              string
	name            string
	description     string
	handlerName     string
	params          map[string]interface{}
	dependencies    []string
	requirements    resource.Requirements
	timeoutSeconds  int
	maxRetries      int
	retryDelaySecs  int
	continueOnError bool
	registry        *task.FunctionRegistry
}

// NewTaskBuilder 创建任务构建器（对外导出，必须包含registry）
// registry: 函数注册中心，用于在Build()时校验处理函数是否存在（不能为nil）
func NewTaskBuilder(id, name string, registry *task.FunctionRegistry) *TaskBuilder {
	if registry == nil {
		panic("registry不能为nil，TaskBuilder必须使用registry")
	}
	return &TaskBuilder{
		id:           id,
		name:         name,
		params:       make(map[string]interface{}),
		dependencies: make([]string, 0),
		registry:     registry,
	}
}

// WithDescription 设置任务描述（链式构建，对外导出）
func (b *TaskBuilder) WithDescription(description string) *TaskBuilder {
	b.description = description
	return b
}

// WithHandler 绑定处理函数及参数（链式构建，对外导出）
// 函数存在性校验延迟到Build()时进行
func (b *TaskBuilder) WithHandler(handlerName string, params map[string]interface{}) *TaskBuilder {
	b.handlerName = handlerName
	if params != nil {
		b.params = params
	}
	return b
}

// WithParam 追加单个参数（链式构建，对外导出）
func (b *TaskBuilder) WithParam(key string, value interface{}) *TaskBuilder {
	b.params[key] = value
	return b
}

// WithDependency 添加前置任务（链式构建，对外导出，自动去重）
func (b *TaskBuilder) WithDependency(taskID string) *TaskBuilder {
	if !slices.Contains(b.dependencies, taskID) {
		b.dependencies = append(b.dependencies, taskID)
	}
	return b
}

// WithDependencies 批量添加前置任务（链式构建，对外导出，自动去重）
func (b *TaskBuilder) WithDependencies(taskIDs ...string) *TaskBuilder {
	for _, id := range taskIDs {
		b.WithDependency(id)
	}
	return b
}

// WithRequirements 声明资源需求（链式构建，对外导出）
func (b *TaskBuilder) WithRequirements(req resource.Requirements) *TaskBuilder {
	b.requirements = req
	return b
}

// WithTimeout 设置超时秒数（链式构建，对外导出）
func (b *TaskBuilder) WithTimeout(seconds int) *TaskBuilder {
	b.timeoutSeconds = seconds
	return b
}

// WithRetry 设置重试次数与重试间隔（链式构建，对外导出）
func (b *TaskBuilder) WithRetry(maxRetries, delaySeconds int) *TaskBuilder {
	b.maxRetries = maxRetries
	b.retryDelaySecs = delaySeconds
	return b
}

// ContinueOnError 设置失败后允许下游继续（链式构建，对外导出）
// 下游任务就绪时该任务的输出为空
func (b *TaskBuilder) ContinueOnError() *TaskBuilder {
	b.continueOnError = true
	return b
}

// Build 校验并产出任务定义（对外导出）
func (b *TaskBuilder) Build() (*workflow.TaskSpec, error) {
	if b.id == "" {
		return nil, fmt.Errorf("任务ID不能为空")
	}
	if b.handlerName == "" {
		return nil, fmt.Errorf("任务 %s 未绑定处理函数", b.id)
	}
	if !b.registry.Has(b.handlerName) {
		return nil, fmt.Errorf("处理函数 %s 未注册", b.handlerName)
	}
	if b.maxRetries < 0 {
		return nil, fmt.Errorf("任务 %s 的重试次数不能为负", b.id)
	}
	return &workflow.TaskSpec{
		ID:                b.id,
		Name:              b.name,
		Description:       b.description,
		HandlerName:       b.handlerName,
		Params:            b.params,
		DependsOn:         b.dependencies,
		Requirements:      b.requirements,
		TimeoutSeconds:    b.timeoutSeconds,
		MaxRetries:        b.maxRetries,
		RetryDelaySeconds: b.retryDelaySecs,
		ContinueOnError:   b.continueOnError,
	}, nil
}
