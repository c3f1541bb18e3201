package engine_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevelan1995/workflow-engine/pkg/core/engine"
)

// submitRecorder 记录触发回调收到的工作流ID
type submitRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *submitRecorder) submit(workflowID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, workflowID)
	return "run-" + workflowID, nil
}

func (r *submitRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func TestCronSchedulerSchedule(t *testing.T) {
	t.Run("注册整点规则", func(t *testing.T) {
		cs := engine.NewCronScheduler((&submitRecorder{}).submit)
		before := time.Now()
		job, err := cs.Schedule("hourly", "wf-1", "0 * * * *")
		require.NoError(t, err)
		assert.True(t, job.Enabled)
		assert.True(t, job.NextFire.After(before), "下次触发严格晚于注册时刻")
		assert.Equal(t, 0, job.NextFire.Minute())
	})

	t.Run("无效表达式", func(t *testing.T) {
		cs := engine.NewCronScheduler((&submitRecorder{}).submit)
		_, err := cs.Schedule("bad", "wf-1", "not a cron")
		require.ErrorIs(t, err, engine.ErrInvalidCronExpression)

		_, err = cs.Schedule("six-fields", "wf-1", "0 0 * * * *")
		assert.ErrorIs(t, err, engine.ErrInvalidCronExpression, "只接受5字段表达式")
	})

	t.Run("重复注册", func(t *testing.T) {
		cs := engine.NewCronScheduler((&submitRecorder{}).submit)
		_, err := cs.Schedule("dup", "wf-1", "* * * * *")
		require.NoError(t, err)
		_, err = cs.Schedule("dup", "wf-2", "* * * * *")
		assert.Error(t, err)
	})
}

func TestCronSchedulerPoll(t *testing.T) {
	t.Run("到期触发且不补发", func(t *testing.T) {
		rec := &submitRecorder{}
		cs := engine.NewCronScheduler(rec.submit)
		job, err := cs.Schedule("hourly", "wf-1", "0 * * * *")
		require.NoError(t, err)

		// 未到期不触发
		assert.Empty(t, cs.Poll(job.NextFire.Add(-time.Minute)))

		// 跨过了多个触发点，也只触发一次
		late := job.NextFire.Add(2 * time.Hour)
		fired := cs.Poll(late)
		assert.Equal(t, []string{"hourly"}, fired)
		assert.Equal(t, 1, rec.count())

		after, ok := cs.Job("hourly")
		require.True(t, ok)
		assert.Equal(t, 1, after.RunCount)
		assert.Equal(t, late, after.LastFire)
		assert.True(t, after.NextFire.After(late), "触发后从当前时刻重算下次触发")

		// 同一触发点不重复触发
		assert.Empty(t, cs.Poll(late))
	})

	t.Run("暂停与恢复", func(t *testing.T) {
		rec := &submitRecorder{}
		cs := engine.NewCronScheduler(rec.submit)
		job, err := cs.Schedule("paused", "wf-2", "* * * * *")
		require.NoError(t, err)

		require.NoError(t, cs.SetEnabled("paused", false))
		assert.Empty(t, cs.Poll(job.NextFire.Add(time.Hour)), "暂停中的规则不触发")

		require.NoError(t, cs.SetEnabled("paused", true))
		resumed, ok := cs.Job("paused")
		require.True(t, ok)
		assert.True(t, resumed.NextFire.After(time.Now().Add(-time.Second)), "恢复后重新锚定下次触发")

		fired := cs.Poll(resumed.NextFire.Add(time.Second))
		assert.Equal(t, []string{"paused"}, fired)
		assert.Equal(t, []string{"wf-2"}, rec.ids)
	})
}

func TestCronSchedulerManage(t *testing.T) {
	cs := engine.NewCronScheduler((&submitRecorder{}).submit)

	t.Run("注销不存在的规则", func(t *testing.T) {
		assert.Error(t, cs.Unschedule("ghost"))
		assert.Error(t, cs.SetEnabled("ghost", false))
	})

	t.Run("列表按ID排序", func(t *testing.T) {
		for _, id := range []string{"zeta", "alpha", "mid"} {
			_, err := cs.Schedule(id, "wf-"+id, "* * * * *")
			require.NoError(t, err)
		}
		jobs := cs.Jobs()
		require.Len(t, jobs, 3)
		assert.Equal(t, "alpha", jobs[0].ID)
		assert.Equal(t, "mid", jobs[1].ID)
		assert.Equal(t, "zeta", jobs[2].ID)
	})

	t.Run("查询返回快照", func(t *testing.T) {
		job, ok := cs.Job("alpha")
		require.True(t, ok)
		job.RunCount = 99
		again, _ := cs.Job("alpha")
		assert.Equal(t, 0, again.RunCount, "修改快照不影响调度器内部状态")
	})

	t.Run("注销后不再列出", func(t *testing.T) {
		require.NoError(t, cs.Unschedule("mid"))
		assert.Len(t, cs.Jobs(), 2)
		_, ok := cs.Job("mid")
		assert.False(t, ok)
	})
}
