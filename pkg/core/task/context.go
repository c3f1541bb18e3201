package task

import (
	"context"
	"fmt"
	"time"

	"github.com/stevelan1995/workflow-engine/pkg/core/branch"
)

// Context 任务执行上下文（对外导出）
// 封装标准context.Context，附带任务参数与上游产出。
// 处理函数必须响应Done()信号以支持取消与超时
type Context struct {
	ctx        context.Context
	TaskID     string
	TaskName   string
	WorkflowID string
	RunID      string
	Iteration  int // 循环体任务的迭代序号（从1开始），非循环任务为0
	Params     map[string]interface{}
	RunContext map[string]interface{} // 任务定义ID -> 上游输出
}

// NewContext 创建任务执行上下文（对外导出）
func NewContext(ctx context.Context, taskID, taskName, workflowID, runID string, iteration int,
	params, runContext map[string]interface{}) *Context {
	if params == nil {
		params = make(map[string]interface{})
	}
	if runContext == nil {
		runContext = make(map[string]interface{})
	}
	return &Context{
		ctx:        ctx,
		TaskID:     taskID,
		TaskName:   taskName,
		WorkflowID: workflowID,
		RunID:      runID,
		Iteration:  iteration,
		Params:     params,
		RunContext: runContext,
	}
}

// Deadline 实现context.Context接口
func (c *Context) Deadline() (time.Time, bool) { return c.ctx.Deadline() }

// Done 实现context.Context接口
func (c *Context) Done() <-chan struct{} { return c.ctx.Done() }

// Err 实现context.Context接口
func (c *Context) Err() error { return c.ctx.Err() }

// Value 实现context.Context接口
func (c *Context) Value(key interface{}) interface{} { return c.ctx.Value(key) }

// GetParam 获取参数（对外导出）
func (c *Context) GetParam(key string) interface{} {
	return c.Params[key]
}

// GetParamString 获取字符串参数（对外导出）
func (c *Context) GetParamString(key string) string {
	if v, ok := c.Params[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// GetParamInt 获取整数参数（对外导出）
// JSON反序列化后的数值为float64，这里做统一转换
func (c *Context) GetParamInt(key string) (int, bool) {
	switch v := c.Params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// GetParamFloat 获取浮点参数（对外导出）
func (c *Context) GetParamFloat(key string) (float64, bool) {
	switch v := c.Params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// GetParamBool 获取布尔参数（对外导出）
func (c *Context) GetParamBool(key string) bool {
	if v, ok := c.Params[key].(bool); ok {
		return v
	}
	return false
}

// UpstreamOutput 获取某个上游任务的输出（对外导出）
// 上游任务按continue_on_error策略失败时输出为nil
func (c *Context) UpstreamOutput(taskID string) (map[string]interface{}, bool) {
	v, ok := c.RunContext[taskID]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return m, ok
}

// LookupContext 按点号路径在运行上下文中查值（对外导出）
func (c *Context) LookupContext(field string) (interface{}, bool) {
	return branch.Lookup(c.RunContext, field)
}
