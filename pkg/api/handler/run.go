package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/stevelan1995/workflow-engine/pkg/api/dto"
	"github.com/stevelan1995/workflow-engine/pkg/core/engine"
	"github.com/stevelan1995/workflow-engine/pkg/core/workflow"
)

// RunHandler 运行记录API处理器
type RunHandler struct {
	engine *engine.Engine
}

// NewRunHandler 创建RunHandler
func NewRunHandler(eng *engine.Engine) *RunHandler {
	return &RunHandler{engine: eng}
}

// List 列出运行记录
// GET /api/v1/runs
func (h *RunHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	var query dto.ListQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("查询参数错误: %v", err)))
		return
	}

	snapshots, err := h.engine.ListRuns(ctx, c.Query("workflow_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询运行失败: %v", err)))
		return
	}

	var items []dto.RunSummary
	for _, snap := range snapshots {
		if query.Status != "" && string(snap.Status) != query.Status {
			continue
		}
		items = append(items, toRunSummary(snap))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	limit := query.GetDefaultLimit()
	offset := query.Offset
	total := len(items)
	if offset >= total {
		items = []dto.RunSummary{}
	} else {
		end := offset + limit
		if end > total {
			end = total
		}
		items = items[offset:end]
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.RunSummary]{
		Total:   total,
		Items:   items,
		HasMore: offset+limit < total,
	}))
}

// Get 获取运行详情
// GET /api/v1/runs/:id
func (h *RunHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	snap, err := h.engine.GetRun(ctx, id)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "运行不存在"))
		return
	}

	detail := dto.RunDetail{
		RunSummary: toRunSummary(snap),
		Progress:   calculateProgress(snap),
		Tasks:      toTaskDetails(snap),
		Context:    snap.Context,
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(detail))
}

// GetTasks 获取运行中的所有任务执行状态
// GET /api/v1/runs/:id/tasks
func (h *RunHandler) GetTasks(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	snap, err := h.engine.GetRun(ctx, id)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "运行不存在"))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(toTaskDetails(snap)))
}

// Cancel 取消运行
// POST /api/v1/runs/:id/cancel
func (h *RunHandler) Cancel(c *gin.Context) {
	id := c.Param("id")

	if err := h.engine.CancelRun(id); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("取消失败: %v", err)))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"message": "已请求取消",
		"id":      id,
	}))
}

// toRunSummary 运行快照转摘要DTO
func toRunSummary(snap *workflow.RunSnapshot) dto.RunSummary {
	summary := dto.RunSummary{
		ID:           snap.ID,
		WorkflowID:   snap.WorkflowID,
		WorkflowName: snap.WorkflowName,
		Status:       string(snap.Status),
		StartedAt:    snap.StartTime,
		FinishedAt:   snap.EndTime,
		ErrorMessage: snap.Error,
	}
	if snap.StartTime != nil && snap.EndTime != nil {
		summary.Duration = formatDuration(snap.EndTime.Sub(*snap.StartTime))
	}
	return summary
}

// toTaskDetails 运行快照中的任务执行状态转DTO，按实例ID排序保证输出稳定
func toTaskDetails(snap *workflow.RunSnapshot) []dto.TaskExecutionDetail {
	ids := make([]string, 0, len(snap.Tasks))
	for id := range snap.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]dto.TaskExecutionDetail, 0, len(ids))
	for _, id := range ids {
		exec := snap.Tasks[id]
		item := dto.TaskExecutionDetail{
			InstanceID:   exec.InstanceID,
			TaskID:       exec.TaskID,
			Iteration:    exec.Iteration,
			Status:       string(exec.Status),
			Attempts:     exec.Attempts,
			StartedAt:    exec.StartTime,
			FinishedAt:   exec.EndTime,
			ErrorMessage: exec.Error,
		}
		if exec.StartTime != nil && exec.EndTime != nil {
			item.Duration = formatDuration(exec.EndTime.Sub(*exec.StartTime))
		}
		items = append(items, item)
	}
	return items
}

// calculateProgress 计算执行进度
func calculateProgress(snap *workflow.RunSnapshot) dto.ProgressInfo {
	progress := dto.ProgressInfo{
		Total: len(snap.Tasks),
	}
	for _, exec := range snap.Tasks {
		switch exec.Status {
		case workflow.TaskSucceeded:
			progress.Completed++
		case workflow.TaskRunning:
			progress.Running++
		case workflow.TaskFailed:
			progress.Failed++
		case workflow.TaskSkipped:
			progress.Skipped++
		default:
			progress.Pending++
		}
	}
	return progress
}
