package cluster_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevelan1995/workflow-engine/pkg/cluster"
	"github.com/stevelan1995/workflow-engine/pkg/core/resource"
	"github.com/stevelan1995/workflow-engine/pkg/core/task"
	"github.com/stevelan1995/workflow-engine/pkg/core/workflow"
)

var defaultCapacity = resource.Limits{CPUCores: 4, MemoryMB: 8192, GPUDevices: 1, ConcurrentSlots: 8}

// fakeWorkerConn 模拟Worker的下行连接，收到派发后立即回传结果
type fakeWorkerConn struct {
	id          string
	coordinator *cluster.Coordinator
	silent      bool // 派发后不回传，模拟失联Worker

	mu         sync.Mutex
	dispatched []string
}

func (f *fakeWorkerConn) Send(msg *cluster.Message) error {
	if msg.Type != cluster.MsgDispatch {
		return nil
	}
	f.mu.Lock()
	f.dispatched = append(f.dispatched, msg.Dispatch.Spec.ID)
	f.mu.Unlock()
	if f.silent {
		return nil
	}
	go f.coordinator.HandleMessage(&cluster.Message{Type: cluster.MsgResult, Result: &cluster.ResultPayload{
		DispatchID: msg.Dispatch.DispatchID,
		WorkerID:   f.id,
		Output:     map[string]interface{}{"by": f.id},
	}})
	return nil
}

func (f *fakeWorkerConn) Close() error { return nil }

func registerFake(c *cluster.Coordinator, id string, capacity resource.Limits, silent bool) *fakeWorkerConn {
	conn := &fakeWorkerConn{id: id, coordinator: c, silent: silent}
	c.AddWorker(&cluster.RegisterPayload{WorkerID: id, Addr: "pipe://" + id, Capacity: capacity}, conn)
	return conn
}

func newTaskContext(taskID string) *task.Context {
	return task.NewContext(context.Background(), taskID, taskID, "wf-1", "run-1", 0, nil, nil)
}

func TestNewWorker(t *testing.T) {
	registry := task.NewFunctionRegistry()
	coordinator := cluster.NewCoordinator(cluster.DefaultCoordinatorConfig())

	t.Run("WorkerID不能为空", func(t *testing.T) {
		_, err := cluster.NewWorker(cluster.WorkerConfig{}, registry, cluster.AttachWorker(coordinator))
		assert.Error(t, err)
	})

	t.Run("注册中心不能为空", func(t *testing.T) {
		_, err := cluster.NewWorker(cluster.WorkerConfig{ID: "w-1"}, nil, cluster.AttachWorker(coordinator))
		assert.Error(t, err)
	})

	t.Run("连接不能为空", func(t *testing.T) {
		_, err := cluster.NewWorker(cluster.WorkerConfig{ID: "w-1"}, registry, nil)
		assert.Error(t, err)
	})
}

func TestCoordinatorPipeEndToEnd(t *testing.T) {
	registry := task.NewFunctionRegistry()
	registry.MustRegister("double", func(tc *task.Context) (map[string]interface{}, error) {
		n, _ := tc.GetParamInt("n")
		return map[string]interface{}{"result": n * 2}, nil
	}, "")
	registry.MustRegister("boom", func(tc *task.Context) (map[string]interface{}, error) {
		return nil, errors.New("模拟执行失败")
	}, "")

	coordinator := cluster.NewCoordinator(cluster.DefaultCoordinatorConfig())
	worker, err := cluster.NewWorker(cluster.WorkerConfig{
		ID:       "w-1",
		Addr:     "pipe://w-1",
		Capacity: defaultCapacity,
	}, registry, cluster.AttachWorker(coordinator))
	require.NoError(t, err)
	require.NoError(t, worker.Start())
	defer worker.Stop()

	t.Run("注册后出现在注册表", func(t *testing.T) {
		workers := coordinator.Workers()
		require.Len(t, workers, 1)
		assert.Equal(t, "w-1", workers[0].ID)
		assert.Equal(t, cluster.WorkerOnline, workers[0].State)
		assert.Equal(t, defaultCapacity, workers[0].Capacity)
	})

	t.Run("派发执行并回传输出", func(t *testing.T) {
		spec := &workflow.TaskSpec{ID: "calc", Name: "计算", HandlerName: "double",
			Params: map[string]interface{}{"n": 21}}
		taskCtx := task.NewContext(context.Background(), spec.ID, spec.Name, "wf-1", "run-1", 0, spec.Params, nil)
		output, err := coordinator.Dispatch(taskCtx, spec)
		require.NoError(t, err)
		assert.Equal(t, 42, output["result"])
	})

	t.Run("处理函数错误回传为执行错误", func(t *testing.T) {
		spec := &workflow.TaskSpec{ID: "bad", Name: "失败", HandlerName: "boom"}
		_, err := coordinator.Dispatch(newTaskContext(spec.ID), spec)
		require.Error(t, err)
		assert.Equal(t, workflow.ErrKindHandler, workflow.KindOf(err))
		assert.Contains(t, err.Error(), "模拟执行失败")
	})

	t.Run("统计计数", func(t *testing.T) {
		stats := coordinator.GetStats()
		assert.Equal(t, 1, stats.Workers)
		assert.Equal(t, 1, stats.Online)
		assert.Equal(t, 1, stats.Completed)
		assert.Equal(t, 1, stats.Failed)
		assert.Equal(t, 0, stats.Inflight)
	})
}

func TestCoordinatorPlacement(t *testing.T) {
	t.Run("负载最低者优先", func(t *testing.T) {
		c := cluster.NewCoordinator(cluster.DefaultCoordinatorConfig())
		registerFake(c, "w-busy", defaultCapacity, false)
		registerFake(c, "w-idle", defaultCapacity, false)
		c.HandleMessage(&cluster.Message{Type: cluster.MsgHeartbeat, Heartbeat: &cluster.HeartbeatPayload{
			WorkerID: "w-busy", Load: 3, Timestamp: time.Now(),
		}})

		output, err := c.Dispatch(newTaskContext("t1"), &workflow.TaskSpec{ID: "t1", HandlerName: "noop"})
		require.NoError(t, err)
		assert.Equal(t, "w-idle", output["by"])
	})

	t.Run("负载并列时取ID最小者", func(t *testing.T) {
		c := cluster.NewCoordinator(cluster.DefaultCoordinatorConfig())
		registerFake(c, "w-b", defaultCapacity, false)
		registerFake(c, "w-a", defaultCapacity, false)

		output, err := c.Dispatch(newTaskContext("t1"), &workflow.TaskSpec{ID: "t1", HandlerName: "noop"})
		require.NoError(t, err)
		assert.Equal(t, "w-a", output["by"])
	})

	t.Run("容量不足的Worker不参与", func(t *testing.T) {
		c := cluster.NewCoordinator(cluster.DefaultCoordinatorConfig())
		small := resource.Limits{CPUCores: 1, MemoryMB: 512, ConcurrentSlots: 1}
		registerFake(c, "w-small", small, false)
		registerFake(c, "w-large", defaultCapacity, false)

		spec := &workflow.TaskSpec{ID: "heavy", HandlerName: "noop",
			Requirements: resource.Requirements{CPUCores: 4, MemoryMB: 4096, ConcurrentSlots: 1}}
		output, err := c.Dispatch(newTaskContext(spec.ID), spec)
		require.NoError(t, err)
		assert.Equal(t, "w-large", output["by"])
	})
}

func TestCoordinatorDispatchWait(t *testing.T) {
	c := cluster.NewCoordinator(cluster.CoordinatorConfig{DispatchWait: 200 * time.Millisecond})

	t.Run("无Worker时排队到上限后报资源不可用", func(t *testing.T) {
		_, err := c.Dispatch(newTaskContext("t1"), &workflow.TaskSpec{ID: "t1", HandlerName: "noop"})
		require.Error(t, err)
		assert.Equal(t, workflow.ErrKindResourceUnavailable, workflow.KindOf(err))
	})

	t.Run("排队期间任务取消", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		taskCtx := task.NewContext(ctx, "t2", "t2", "wf-1", "run-1", 0, nil, nil)
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()
		_, err := c.Dispatch(taskCtx, &workflow.TaskSpec{ID: "t2", HandlerName: "noop"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCoordinatorRedispatch(t *testing.T) {
	c := cluster.NewCoordinator(cluster.DefaultCoordinatorConfig())
	// ID靠前的失联Worker会先被选中
	dead := registerFake(c, "a-dead", defaultCapacity, true)
	registerFake(c, "b-live", defaultCapacity, false)

	go func() {
		time.Sleep(50 * time.Millisecond)
		c.RemoveWorker("a-dead")
	}()

	spec := &workflow.TaskSpec{ID: "t1", HandlerName: "noop"}
	output, err := c.Dispatch(newTaskContext(spec.ID), spec)
	require.NoError(t, err)
	assert.Equal(t, "b-live", output["by"], "失联Worker的在途任务重派到存活Worker")

	dead.mu.Lock()
	assert.Equal(t, []string{"t1"}, dead.dispatched, "首次派发落在失联Worker上")
	dead.mu.Unlock()
	assert.Len(t, c.Workers(), 1)
}

func TestCoordinatorHealthCheck(t *testing.T) {
	c := cluster.NewCoordinator(cluster.CoordinatorConfig{
		HeartbeatInterval: 20 * time.Millisecond,
		MissThreshold:     2,
		DispatchWait:      time.Second,
	})
	registerFake(c, "w-1", defaultCapacity, false)
	c.Start()
	defer c.Stop()

	require.Eventually(t, func() bool {
		workers := c.Workers()
		return len(workers) == 1 && workers[0].State == cluster.WorkerUnreachable
	}, 2*time.Second, 10*time.Millisecond, "心跳缺失超过阈值后标记失联")

	// 心跳恢复后重新进入在线状态
	c.HandleMessage(&cluster.Message{Type: cluster.MsgHeartbeat, Heartbeat: &cluster.HeartbeatPayload{
		WorkerID: "w-1", Load: 0, Timestamp: time.Now(),
	}})
	workers := c.Workers()
	require.Len(t, workers, 1)
	assert.Equal(t, cluster.WorkerOnline, workers[0].State)
}
