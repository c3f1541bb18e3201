package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevelan1995/workflow-engine/pkg/core/branch"
	"github.com/stevelan1995/workflow-engine/pkg/core/resource"
	"github.com/stevelan1995/workflow-engine/pkg/core/workflow"
)

func newTask(id string, deps ...string) *workflow.TaskSpec {
	return &workflow.TaskSpec{
		ID:          id,
		Name:        id,
		HandlerName: "noop",
		DependsOn:   deps,
	}
}

func TestWorkflowValidate(t *testing.T) {
	noLimits := resource.Limits{}

	t.Run("合法定义通过校验", func(t *testing.T) {
		wf := workflow.NewWorkflow("pipeline", "")
		require.NoError(t, wf.AddTask(newTask("fetch")))
		require.NoError(t, wf.AddTask(newTask("process", "fetch")))
		require.NoError(t, wf.AddTask(newTask("store", "process")))
		assert.NoError(t, wf.Validate(noLimits))
	})

	t.Run("空工作流报错", func(t *testing.T) {
		wf := workflow.NewWorkflow("empty", "")
		assert.Error(t, wf.Validate(noLimits))
	})

	t.Run("依赖不存在的任务报错", func(t *testing.T) {
		wf := workflow.NewWorkflow("dangling", "")
		require.NoError(t, wf.AddTask(newTask("a", "ghost")))
		err := wf.Validate(noLimits)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ghost")
	})

	t.Run("循环依赖报错", func(t *testing.T) {
		wf := workflow.NewWorkflow("cyclic", "")
		require.NoError(t, wf.AddTask(newTask("a", "c")))
		require.NoError(t, wf.AddTask(newTask("b", "a")))
		require.NoError(t, wf.AddTask(newTask("c", "b")))
		assert.Error(t, wf.Validate(noLimits))
	})

	t.Run("未绑定处理函数报错", func(t *testing.T) {
		wf := workflow.NewWorkflow("no-handler", "")
		require.NoError(t, wf.AddTask(&workflow.TaskSpec{ID: "a", Name: "a"}))
		assert.Error(t, wf.Validate(noLimits))
	})

	t.Run("资源需求超容量报错", func(t *testing.T) {
		wf := workflow.NewWorkflow("greedy", "")
		spec := newTask("train")
		spec.Requirements = resource.Requirements{CPUCores: 16}
		require.NoError(t, wf.AddTask(spec))

		// 容量为零值时跳过检查
		assert.NoError(t, wf.Validate(resource.Limits{}))
		// 指定容量后拒绝
		assert.Error(t, wf.Validate(resource.Limits{CPUCores: 8, MemoryMB: 1024, ConcurrentSlots: 4}))
	})

	t.Run("分支引用不存在的任务报错", func(t *testing.T) {
		wf := workflow.NewWorkflow("bad-branch", "")
		require.NoError(t, wf.AddTask(newTask("fetch")))
		require.NoError(t, wf.AddBranch(&branch.Spec{
			ID:        "gate",
			Type:      branch.TypeIf,
			DependsOn: []string{"fetch"},
			If: &branch.IfSpec{
				Condition: branch.Condition{Field: "x", Op: branch.OpEq, Value: 1},
				Then:      []string{"missing"},
			},
		}))
		assert.Error(t, wf.Validate(noLimits))
	})

	t.Run("任务不能同时属于两个分支", func(t *testing.T) {
		wf := workflow.NewWorkflow("overlap", "")
		require.NoError(t, wf.AddTask(newTask("root")))
		require.NoError(t, wf.AddTask(newTask("shared", "root")))
		cond := branch.Condition{Field: "x", Op: branch.OpEq, Value: 1}
		require.NoError(t, wf.AddBranch(&branch.Spec{
			ID: "g1", Type: branch.TypeIf, DependsOn: []string{"root"},
			If: &branch.IfSpec{Condition: cond, Then: []string{"shared"}},
		}))
		require.NoError(t, wf.AddBranch(&branch.Spec{
			ID: "g2", Type: branch.TypeIf, DependsOn: []string{"root"},
			If: &branch.IfSpec{Condition: cond, Then: []string{"shared"}},
		}))
		assert.Error(t, wf.Validate(noLimits))
	})

	t.Run("重复添加任务报错", func(t *testing.T) {
		wf := workflow.NewWorkflow("dup", "")
		require.NoError(t, wf.AddTask(newTask("a")))
		assert.Error(t, wf.AddTask(newTask("a")))
	})
}

func TestLoopBodyTasks(t *testing.T) {
	wf := workflow.NewWorkflow("loop", "")
	require.NoError(t, wf.AddTask(newTask("prepare")))
	require.NoError(t, wf.AddTask(newTask("train")))
	require.NoError(t, wf.AddBranch(&branch.Spec{
		ID: "train-loop", Type: branch.TypeLoop, DependsOn: []string{"prepare"},
		Loop: &branch.LoopSpec{
			Body:          []string{"train"},
			BreakWhen:     branch.Condition{Field: "train.accuracy", Op: branch.OpGe, Value: 0.95},
			MaxIterations: 5,
		},
	}))

	body := wf.LoopBodyTasks()
	assert.Equal(t, map[string]string{"train": "train-loop"}, body)
}

func TestRunLifecycle(t *testing.T) {
	wf := workflow.NewWorkflow("pipeline", "")
	require.NoError(t, wf.AddTask(newTask("fetch")))
	require.NoError(t, wf.AddTask(newTask("store", "fetch")))

	run := workflow.NewRun(wf)
	assert.Equal(t, workflow.StatusPending, run.GetStatus())

	run.AddTaskExecution(&workflow.TaskExecution{InstanceID: "fetch", TaskID: "fetch", Status: workflow.TaskPending})
	run.AddTaskExecution(&workflow.TaskExecution{InstanceID: "store", TaskID: "store", Status: workflow.TaskPending})

	t.Run("任务成功后输出写入运行上下文", func(t *testing.T) {
		run.SetTaskStatus("fetch", workflow.TaskRunning)
		run.SetTaskResult("fetch", map[string]interface{}{"count": 3}, "")
		run.SetTaskStatus("fetch", workflow.TaskSucceeded)

		out, ok := run.Output("fetch")
		require.True(t, ok)
		assert.Equal(t, 3, out["count"])

		evalCtx := run.EvalContext()
		nested, ok := evalCtx["fetch"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, 3, nested["count"])
	})

	t.Run("进度统计已完成任务", func(t *testing.T) {
		done, total := run.Progress()
		assert.Equal(t, 1, done)
		assert.Equal(t, 2, total)
	})

	t.Run("快照是深拷贝", func(t *testing.T) {
		snap := run.Snapshot()
		snap.Tasks["fetch"] = workflow.TaskExecution{Status: workflow.TaskFailed}

		exec, ok := run.TaskExecution("fetch")
		require.True(t, ok)
		assert.Equal(t, workflow.TaskSucceeded, exec.Status)
	})

	t.Run("终态判定", func(t *testing.T) {
		assert.False(t, workflow.StatusRunning.IsTerminal())
		assert.True(t, workflow.StatusSucceeded.IsTerminal())
		assert.True(t, workflow.StatusFailed.IsTerminal())
		assert.True(t, workflow.StatusCancelled.IsTerminal())
		assert.True(t, workflow.TaskSkipped.IsTerminal())
	})
}
