package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevelan1995/workflow-engine/pkg/config"
	"github.com/stevelan1995/workflow-engine/pkg/core/engine"
	"github.com/stevelan1995/workflow-engine/pkg/core/events"
	"github.com/stevelan1995/workflow-engine/pkg/core/task"
	"github.com/stevelan1995/workflow-engine/pkg/core/workflow"
)

// testConfig 关闭重试，避免失败用例被默认重试延迟拖慢
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Engine.EnableRetry = false
	return cfg
}

func newTestEngine(t *testing.T, registry *task.FunctionRegistry, opts ...engine.Option) *engine.Engine {
	t.Helper()
	e, err := engine.NewEngine(testConfig(), registry, opts...)
	require.NoError(t, err)
	return e
}

func echoRegistry(t *testing.T) *task.FunctionRegistry {
	t.Helper()
	registry := task.NewFunctionRegistry()
	registry.MustRegister("echo", func(tc *task.Context) (map[string]interface{}, error) {
		return map[string]interface{}{"msg": tc.GetParamString("msg")}, nil
	}, "回显参数")
	return registry
}

func echoWorkflow(t *testing.T) *workflow.Workflow {
	t.Helper()
	wf := workflow.NewWorkflow("echo-flow", "")
	require.NoError(t, wf.AddTask(&workflow.TaskSpec{ID: "echo", Name: "回显", HandlerName: "echo"}))
	return wf
}

func TestEngineRegisterWorkflow(t *testing.T) {
	t.Run("注册与重复注册", func(t *testing.T) {
		e := newTestEngine(t, echoRegistry(t))
		wf := echoWorkflow(t)
		require.NoError(t, e.RegisterWorkflow(wf))
		assert.Error(t, e.RegisterWorkflow(wf))

		got, ok := e.GetWorkflow(wf.ID)
		require.True(t, ok)
		assert.Equal(t, "echo-flow", got.Name)
		assert.Len(t, e.Workflows(), 1)
	})

	t.Run("定义校验失败", func(t *testing.T) {
		e := newTestEngine(t, echoRegistry(t))
		wf := echoWorkflow(t)
		require.NoError(t, wf.AddTask(&workflow.TaskSpec{
			ID: "orphan", Name: "悬空依赖", HandlerName: "echo", DependsOn: []string{"ghost"},
		}))
		err := e.RegisterWorkflow(wf)
		require.Error(t, err)
		assert.True(t, workflow.IsValidationError(err))
	})

	t.Run("注册时套用默认值", func(t *testing.T) {
		e, err := engine.NewEngine(config.Default(), echoRegistry(t))
		require.NoError(t, err)
		wf := echoWorkflow(t)
		require.NoError(t, e.RegisterWorkflow(wf))

		spec, _ := wf.GetTask("echo")
		assert.Equal(t, 300, spec.TimeoutSeconds)
		assert.Equal(t, 3, spec.MaxRetries)
		assert.Equal(t, 5, spec.RetryDelaySeconds)
	})
}

func TestEngineExecuteWorkflow(t *testing.T) {
	e := newTestEngine(t, echoRegistry(t))
	wf := echoWorkflow(t)
	wf.Params = map[string]interface{}{"msg": "hello"}

	snap, err := e.ExecuteWorkflow(context.Background(), wf)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusSucceeded, snap.Status)

	exec, ok := snap.Tasks["echo"]
	require.True(t, ok)
	assert.Equal(t, workflow.TaskSucceeded, exec.Status)
	assert.Equal(t, "hello", exec.Output["msg"])

	got, err := e.GetRun(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusSucceeded, got.Status)
}

func TestEngineSubmitByID(t *testing.T) {
	t.Run("未注册的工作流", func(t *testing.T) {
		e := newTestEngine(t, echoRegistry(t))
		_, err := e.SubmitByID(context.Background(), "ghost")
		assert.Error(t, err)
	})

	t.Run("参数覆盖只作用于本次运行", func(t *testing.T) {
		e := newTestEngine(t, echoRegistry(t))
		wf := echoWorkflow(t)
		wf.Params = map[string]interface{}{"msg": "default"}
		require.NoError(t, e.RegisterWorkflow(wf))

		runID, err := e.SubmitByIDWithParams(context.Background(), wf.ID,
			map[string]interface{}{"msg": "override"})
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			snap, err := e.GetRun(context.Background(), runID)
			return err == nil && snap.Status.IsTerminal()
		}, 5*time.Second, 20*time.Millisecond)

		snap, err := e.GetRun(context.Background(), runID)
		require.NoError(t, err)
		assert.Equal(t, workflow.StatusSucceeded, snap.Status)
		assert.Equal(t, "override", snap.Tasks["echo"].Output["msg"])

		// 注册的定义保持不变
		registered, _ := e.GetWorkflow(wf.ID)
		assert.Equal(t, "default", registered.Params["msg"])
	})
}

func TestEngineCancelRun(t *testing.T) {
	registry := task.NewFunctionRegistry()
	started := make(chan struct{})
	registry.MustRegister("hang", func(tc *task.Context) (map[string]interface{}, error) {
		close(started)
		<-tc.Done()
		return nil, tc.Err()
	}, "阻塞直到取消")

	e := newTestEngine(t, registry)
	wf := workflow.NewWorkflow("cancellable", "")
	require.NoError(t, wf.AddTask(&workflow.TaskSpec{ID: "hang", Name: "挂起", HandlerName: "hang"}))
	require.NoError(t, e.RegisterWorkflow(wf))

	runID, err := e.SubmitByID(context.Background(), wf.ID)
	require.NoError(t, err)
	<-started

	require.NoError(t, e.CancelRun(runID))
	require.Eventually(t, func() bool {
		snap, err := e.GetRun(context.Background(), runID)
		return err == nil && snap.Status == workflow.StatusCancelled
	}, 5*time.Second, 20*time.Millisecond)

	t.Run("重复取消已结束的运行", func(t *testing.T) {
		assert.Error(t, e.CancelRun(runID))
	})

	t.Run("取消不存在的运行", func(t *testing.T) {
		assert.Error(t, e.CancelRun("ghost"))
	})
}

func TestEngineEventBus(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var seen []string
	record := func(ev *events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.Type)
		return nil
	}
	require.NoError(t, bus.Subscribe(events.WorkflowStarted, record))
	require.NoError(t, bus.Subscribe(events.TaskSucceeded, record))
	require.NoError(t, bus.Subscribe(events.WorkflowCompleted, record))

	e := newTestEngine(t, echoRegistry(t), engine.WithEventBus(bus))
	_, err := e.ExecuteWorkflow(context.Background(), echoWorkflow(t))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 3
	}, 5*time.Second, 20*time.Millisecond, "运行级与任务级事件都应发布")

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, events.WorkflowStarted)
	assert.Contains(t, seen, events.TaskSucceeded)
	assert.Contains(t, seen, events.WorkflowCompleted)
}

func TestEngineScheduleCron(t *testing.T) {
	e := newTestEngine(t, echoRegistry(t))

	t.Run("未注册的工作流不可调度", func(t *testing.T) {
		_, err := e.ScheduleCron("job-1", "ghost", "0 * * * *")
		assert.Error(t, err)
	})

	t.Run("注册后可调度与移除", func(t *testing.T) {
		wf := echoWorkflow(t)
		require.NoError(t, e.RegisterWorkflow(wf))

		job, err := e.ScheduleCron("job-1", wf.ID, "0 * * * *")
		require.NoError(t, err)
		assert.Equal(t, wf.ID, job.WorkflowID)

		_, err = e.ScheduleCron("job-2", wf.ID, "bad expr")
		assert.True(t, errors.Is(err, engine.ErrInvalidCronExpression))

		require.NoError(t, e.UnscheduleCron("job-1"))
		assert.Error(t, e.UnscheduleCron("job-1"))
	})
}
