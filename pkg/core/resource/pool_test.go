package resource_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevelan1995/workflow-engine/pkg/core/resource"
)

func TestPoolAcquireRelease(t *testing.T) {
	t.Run("获取与归还原子生效", func(t *testing.T) {
		pool := resource.NewPool(resource.Limits{CPUCores: 4, MemoryMB: 8192, GPUDevices: 2, ConcurrentSlots: 10})
		req := resource.Requirements{CPUCores: 2, MemoryMB: 1024, GPUDevices: 1, ConcurrentSlots: 3}

		require.NoError(t, pool.Acquire(context.Background(), req))

		usage := pool.Snapshot()
		assert.Equal(t, 2.0, usage.CPUCores)
		assert.Equal(t, int64(1024), usage.MemoryMB)
		assert.Equal(t, 1, usage.GPUDevices)
		assert.Equal(t, 3, usage.ConcurrentSlots)

		pool.Release(req)
		usage = pool.Snapshot()
		assert.Equal(t, 0.0, usage.CPUCores)
		assert.Equal(t, int64(0), usage.MemoryMB)
		assert.Equal(t, 0, usage.GPUDevices)
		assert.Equal(t, 0, usage.ConcurrentSlots)
	})

	t.Run("空需求不占用资源", func(t *testing.T) {
		pool := resource.NewPool(resource.Limits{CPUCores: 1})
		require.NoError(t, pool.Acquire(context.Background(), resource.Requirements{}))
		assert.Equal(t, resource.Usage{}, pool.Snapshot())
	})

	t.Run("超过总容量立即拒绝", func(t *testing.T) {
		pool := resource.NewPool(resource.Limits{CPUCores: 4, MemoryMB: 1024, ConcurrentSlots: 2})

		err := pool.Acquire(context.Background(), resource.Requirements{CPUCores: 8})
		require.Error(t, err)
		assert.ErrorIs(t, err, resource.ErrExceedsCapacity)

		// 拒绝不应占用任何资源也不应排队
		assert.Equal(t, resource.Usage{}, pool.Snapshot())
		assert.Equal(t, 0, pool.QueueLength())
	})
}

func TestPoolFIFO(t *testing.T) {
	t.Run("等待者按先来后到获批", func(t *testing.T) {
		pool := resource.NewPool(resource.Limits{ConcurrentSlots: 1})
		slot := resource.Requirements{ConcurrentSlots: 1}

		require.NoError(t, pool.Acquire(context.Background(), slot))

		var mu sync.Mutex
		var order []int
		var wg sync.WaitGroup

		// 依次入队三个等待者，用QueueLength确认排队顺序
		for i := 1; i <= 3; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				assert.NoError(t, pool.Acquire(context.Background(), slot))
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
				pool.Release(slot)
			}(i)
			require.Eventually(t, func() bool { return pool.QueueLength() == i },
				time.Second, time.Millisecond, "等待者%d未入队", i)
		}

		pool.Release(slot)
		wg.Wait()

		assert.Equal(t, []int{1, 2, 3}, order)
	})

	t.Run("装不下的队首不阻塞其后装得下的请求", func(t *testing.T) {
		pool := resource.NewPool(resource.Limits{CPUCores: 4})
		holdA := resource.Requirements{CPUCores: 2}
		holdB := resource.Requirements{CPUCores: 2}
		require.NoError(t, pool.Acquire(context.Background(), holdA))
		require.NoError(t, pool.Acquire(context.Background(), holdB))

		var mu sync.Mutex
		var order []string
		granted := func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string{}, order...)
		}
		var wg sync.WaitGroup

		// 大请求先排队
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, pool.Acquire(context.Background(), resource.Requirements{CPUCores: 3}))
			mu.Lock()
			order = append(order, "big")
			mu.Unlock()
		}()
		require.Eventually(t, func() bool { return pool.QueueLength() == 1 }, time.Second, time.Millisecond)

		// 小请求排在大请求后面
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, pool.Acquire(context.Background(), resource.Requirements{CPUCores: 1}))
			mu.Lock()
			order = append(order, "small")
			mu.Unlock()
		}()
		require.Eventually(t, func() bool { return pool.QueueLength() == 2 }, time.Second, time.Millisecond)

		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, granted(), "释放前不应有任何等待者获批")

		// 释放2核后队首的大请求（3核）仍装不下，越过它放行小请求
		pool.Release(holdB)
		require.Eventually(t, func() bool { return len(granted()) == 1 }, time.Second, time.Millisecond)
		assert.Equal(t, []string{"small"}, granted())
		assert.Equal(t, 1, pool.QueueLength())

		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, []string{"small"}, granted(), "大请求在容量不足时仍需等待")

		pool.Release(holdA)
		wg.Wait()

		assert.Equal(t, []string{"small", "big"}, granted())
		assert.Equal(t, 0, pool.QueueLength())
	})
}

func TestPoolWaitTimeout(t *testing.T) {
	t.Run("等待超时返回ErrWaitTimeout", func(t *testing.T) {
		pool := resource.NewPool(resource.Limits{ConcurrentSlots: 1})
		slot := resource.Requirements{ConcurrentSlots: 1}
		require.NoError(t, pool.Acquire(context.Background(), slot))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := pool.Acquire(ctx, slot)
		require.Error(t, err)
		assert.ErrorIs(t, err, resource.ErrWaitTimeout)

		// 超时后等待者应被移出队列
		assert.Equal(t, 0, pool.QueueLength())
	})
}

func TestPoolClose(t *testing.T) {
	t.Run("关闭唤醒所有等待者", func(t *testing.T) {
		pool := resource.NewPool(resource.Limits{ConcurrentSlots: 1})
		slot := resource.Requirements{ConcurrentSlots: 1}
		require.NoError(t, pool.Acquire(context.Background(), slot))

		errCh := make(chan error, 1)
		go func() {
			errCh <- pool.Acquire(context.Background(), slot)
		}()
		require.Eventually(t, func() bool { return pool.QueueLength() == 1 }, time.Second, time.Millisecond)

		pool.Close()

		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, resource.ErrPoolClosed)
		case <-time.After(time.Second):
			t.Fatal("关闭后等待者未被唤醒")
		}

		// 关闭后的新请求一样拒绝
		assert.ErrorIs(t, pool.Acquire(context.Background(), slot), resource.ErrPoolClosed)
	})
}
