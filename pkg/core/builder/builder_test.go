package builder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevelan1995/workflow-engine/pkg/core/branch"
	"github.com/stevelan1995/workflow-engine/pkg/core/builder"
	"github.com/stevelan1995/workflow-engine/pkg/core/resource"
	"github.com/stevelan1995/workflow-engine/pkg/core/task"
)

func newRegistry(t *testing.T, names ...string) *task.FunctionRegistry {
	t.Helper()
	registry := task.NewFunctionRegistry()
	for _, name := range names {
		registry.MustRegister(name, func(tc *task.Context) (map[string]interface{}, error) {
			return nil, nil
		}, "")
	}
	return registry
}

func TestTaskBuilder(t *testing.T) {
	t.Run("registry为nil时panic", func(t *testing.T) {
		assert.Panics(t, func() { builder.NewTaskBuilder("t1", "任务", nil) })
	})

	t.Run("完整构建", func(t *testing.T) {
		registry := newRegistry(t, "fetch")
		spec, err := builder.NewTaskBuilder("fetch", "拉取", registry).
			WithDescription("拉取行情数据").
			WithHandler("fetch", map[string]interface{}{"symbol": "SH600519"}).
			WithParam("limit", 100).
			WithDependencies("a", "b").
			WithDependency("a").
			WithRequirements(resource.Requirements{CPUCores: 2, MemoryMB: 1024}).
			WithTimeout(60).
			WithRetry(3, 2).
			ContinueOnError().
			Build()
		require.NoError(t, err)
		assert.Equal(t, "fetch", spec.ID)
		assert.Equal(t, "fetch", spec.HandlerName)
		assert.Equal(t, "SH600519", spec.Params["symbol"])
		assert.Equal(t, 100, spec.Params["limit"])
		assert.Equal(t, []string{"a", "b"}, spec.DependsOn, "依赖自动去重")
		assert.Equal(t, 60, spec.TimeoutSeconds)
		assert.Equal(t, 3, spec.MaxRetries)
		assert.Equal(t, 2, spec.RetryDelaySeconds)
		assert.True(t, spec.ContinueOnError)
	})

	t.Run("构建校验", func(t *testing.T) {
		registry := newRegistry(t, "fetch")

		_, err := builder.NewTaskBuilder("", "无ID", registry).WithHandler("fetch", nil).Build()
		assert.Error(t, err)

		_, err = builder.NewTaskBuilder("t1", "无处理函数", registry).Build()
		assert.Error(t, err)

		_, err = builder.NewTaskBuilder("t1", "未注册", registry).WithHandler("ghost", nil).Build()
		assert.Error(t, err, "处理函数必须已注册")

		_, err = builder.NewTaskBuilder("t1", "负重试", registry).
			WithHandler("fetch", nil).WithRetry(-1, 0).Build()
		assert.Error(t, err)
	})
}

func TestWorkflowBuilder(t *testing.T) {
	t.Run("registry为nil时panic", func(t *testing.T) {
		assert.Panics(t, func() { builder.NewWorkflowBuilder("wf", "", nil) })
	})

	t.Run("链式构建完整工作流", func(t *testing.T) {
		registry := newRegistry(t, "fetch", "clean", "train", "report")
		wf, err := builder.NewWorkflowBuilder("pipeline", "数据流水线", registry).
			WithID("wf-pipeline").
			WithTimeout(600).
			WithParams(map[string]interface{}{"env": "prod"}).
			Task("fetch", "拉取", func(tb *builder.TaskBuilder) {
				tb.WithHandler("fetch", nil)
			}).
			Task("clean", "清洗", func(tb *builder.TaskBuilder) {
				tb.WithHandler("clean", nil).WithDependency("fetch")
			}).
			Task("train", "训练", func(tb *builder.TaskBuilder) {
				tb.WithHandler("train", nil).WithDependency("clean")
			}).
			Task("report", "报告", func(tb *builder.TaskBuilder) {
				tb.WithHandler("report", nil).WithDependency("train")
			}).
			Loop("train-loop", []string{"clean"}, []string{"train"},
				branch.Condition{Field: "train.loss", Op: branch.OpLe, Value: 0.01}, 5).
			Build()
		require.NoError(t, err)
		assert.Equal(t, "wf-pipeline", wf.ID)
		assert.Equal(t, 600, wf.TimeoutSeconds)
		assert.Equal(t, "prod", wf.Params["env"])
		assert.Equal(t, []string{"fetch", "clean", "train", "report"}, wf.TaskOrder)
		require.Len(t, wf.Branches, 1)
		assert.Equal(t, branch.TypeLoop, wf.Branches[0].Type)
	})

	t.Run("串行模式", func(t *testing.T) {
		registry := newRegistry(t, "step")
		wf, err := builder.NewWorkflowBuilder("serial", "", registry).
			Sequential().
			Task("s1", "步骤一", func(tb *builder.TaskBuilder) { tb.WithHandler("step", nil) }).
			Task("s2", "步骤二", func(tb *builder.TaskBuilder) { tb.WithHandler("step", nil) }).
			Build()
		require.NoError(t, err)
		assert.False(t, wf.Parallel)
	})

	t.Run("构建错误向后传递", func(t *testing.T) {
		registry := newRegistry(t, "step")

		_, err := builder.NewWorkflowBuilder("bad", "", registry).
			Task("s1", "未注册处理函数", func(tb *builder.TaskBuilder) {
				tb.WithHandler("ghost", nil)
			}).
			Build()
		assert.Error(t, err, "任务构建失败在Build时统一上报")

		_, err = builder.NewWorkflowBuilder("bad", "", registry).
			Task("s1", "步骤", func(tb *builder.TaskBuilder) { tb.WithHandler("step", nil) }).
			Task("s1", "重复ID", func(tb *builder.TaskBuilder) { tb.WithHandler("step", nil) }).
			Build()
		assert.Error(t, err)

		_, err = builder.NewWorkflowBuilder("bad", "", registry).
			Task("s1", "悬空依赖", func(tb *builder.TaskBuilder) {
				tb.WithHandler("step", nil).WithDependency("ghost")
			}).
			Build()
		assert.Error(t, err, "结构校验在Build时执行")
	})

	t.Run("If分支接入", func(t *testing.T) {
		registry := newRegistry(t, "probe", "fast", "deep")
		wf, err := builder.NewWorkflowBuilder("gated", "", registry).
			Task("probe", "探测", func(tb *builder.TaskBuilder) { tb.WithHandler("probe", nil) }).
			Task("fast", "快速", func(tb *builder.TaskBuilder) { tb.WithHandler("fast", nil) }).
			Task("deep", "深度", func(tb *builder.TaskBuilder) { tb.WithHandler("deep", nil) }).
			If("gate", []string{"probe"},
				branch.Condition{Field: "probe.score", Op: branch.OpGt, Value: 0.5},
				[]string{"fast"}, []string{"deep"}).
			Build()
		require.NoError(t, err)
		require.Len(t, wf.Branches, 1)
		assert.ElementsMatch(t, []string{"fast", "deep"}, wf.Branches[0].MemberTasks())
	})
}
