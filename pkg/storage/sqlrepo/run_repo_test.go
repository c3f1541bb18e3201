package sqlrepo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevelan1995/workflow-engine/pkg/core/workflow"
	"github.com/stevelan1995/workflow-engine/pkg/storage"
	"github.com/stevelan1995/workflow-engine/pkg/storage/sqlite"
	"github.com/stevelan1995/workflow-engine/pkg/storage/sqlrepo"
)

func newTestRepo(t *testing.T) *sqlrepo.RunRepo {
	t.Helper()
	db, err := sqlx.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	repo, err := sqlrepo.NewRunRepo(db, sqlite.NewDialect())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleSnapshot(runID, workflowID string, createTime time.Time) *workflow.RunSnapshot {
	start := createTime.Add(time.Second)
	end := createTime.Add(3 * time.Second)
	return &workflow.RunSnapshot{
		ID:           runID,
		WorkflowID:   workflowID,
		WorkflowName: "quote-pipeline",
		Status:       workflow.StatusSucceeded,
		Tasks: map[string]workflow.TaskExecution{
			"fetch": {
				InstanceID: "fetch",
				TaskID:     "fetch",
				Status:     workflow.TaskSucceeded,
				Attempts:   1,
				Output:     map[string]interface{}{"rows": float64(120)},
				StartTime:  &start,
				EndTime:    &end,
			},
			"train#2": {
				InstanceID: "train#2",
				TaskID:     "train",
				Iteration:  2,
				Status:     workflow.TaskFailed,
				Attempts:   3,
				Error:      "训练发散",
			},
		},
		Context:    map[string]interface{}{"fetch": map[string]interface{}{"rows": float64(120)}},
		CreateTime: createTime,
		StartTime:  &start,
		EndTime:    &end,
	}
}

func TestRunRepoSaveAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	snap := sampleSnapshot("run-1", "wf-1", now)
	require.NoError(t, repo.SaveRun(ctx, snap))

	got, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", got.WorkflowID)
	assert.Equal(t, "quote-pipeline", got.WorkflowName)
	assert.Equal(t, workflow.StatusSucceeded, got.Status)
	assert.True(t, got.CreateTime.Equal(now))
	require.NotNil(t, got.StartTime)
	require.NotNil(t, got.EndTime)

	require.Len(t, got.Tasks, 2)
	fetch := got.Tasks["fetch"]
	assert.Equal(t, workflow.TaskSucceeded, fetch.Status)
	assert.Equal(t, 1, fetch.Attempts)
	assert.Equal(t, float64(120), fetch.Output["rows"], "输出经JSON往返后数值为float64")
	require.NotNil(t, fetch.StartTime)

	train := got.Tasks["train#2"]
	assert.Equal(t, "train", train.TaskID)
	assert.Equal(t, 2, train.Iteration)
	assert.Equal(t, workflow.TaskFailed, train.Status)
	assert.Equal(t, "训练发散", train.Error)
	assert.Nil(t, train.Output)

	assert.Equal(t, snap.Context, got.Context)
}

func TestRunRepoSaveIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	snap := sampleSnapshot("run-1", "wf-1", now)
	snap.Status = workflow.StatusRunning
	snap.EndTime = nil
	require.NoError(t, repo.SaveRun(ctx, snap))

	// 同一RunID再次保存为终态，行被更新而非重复
	end := now.Add(5 * time.Second)
	snap.Status = workflow.StatusSucceeded
	snap.EndTime = &end
	require.NoError(t, repo.SaveRun(ctx, snap))

	got, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusSucceeded, got.Status)
	require.NotNil(t, got.EndTime)
	assert.Len(t, got.Tasks, 2, "任务记录整体替换，不产生重复行")

	snaps, err := repo.ListRuns(ctx, "wf-1", 0)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestRunRepoListRuns(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		snap := sampleSnapshot(fmt.Sprintf("run-a-%d", i), "wf-a", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.SaveRun(ctx, snap))
	}
	require.NoError(t, repo.SaveRun(ctx, sampleSnapshot("run-b-0", "wf-b", base)))

	t.Run("按工作流过滤", func(t *testing.T) {
		snaps, err := repo.ListRuns(ctx, "wf-a", 0)
		require.NoError(t, err)
		require.Len(t, snaps, 3)
		assert.Equal(t, "run-a-2", snaps[0].ID, "按创建时间倒序")
	})

	t.Run("不过滤时返回全部", func(t *testing.T) {
		snaps, err := repo.ListRuns(ctx, "", 0)
		require.NoError(t, err)
		assert.Len(t, snaps, 4)
	})

	t.Run("限制返回条数", func(t *testing.T) {
		snaps, err := repo.ListRuns(ctx, "wf-a", 2)
		require.NoError(t, err)
		assert.Len(t, snaps, 2)
	})
}

func TestRunRepoDeleteRun(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	snap := sampleSnapshot("run-1", "wf-1", time.Now().UTC())
	require.NoError(t, repo.SaveRun(ctx, snap))

	require.NoError(t, repo.DeleteRun(ctx, "run-1"))
	_, err := repo.GetRun(ctx, "run-1")
	assert.ErrorIs(t, err, storage.ErrRunNotFound)

	// 删除不存在的记录不报错
	assert.NoError(t, repo.DeleteRun(ctx, "ghost"))
}

func TestRunRepoGetMissing(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetRun(context.Background(), "ghost")
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
}
