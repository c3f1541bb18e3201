package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stevelan1995/workflow-engine/pkg/api/dto"
	"github.com/stevelan1995/workflow-engine/pkg/core/engine"
)

// WorkflowHandler Workflow API处理器
type WorkflowHandler struct {
	engine *engine.Engine
}

// NewWorkflowHandler 创建WorkflowHandler
func NewWorkflowHandler(eng *engine.Engine) *WorkflowHandler {
	return &WorkflowHandler{engine: eng}
}

// List 列出已注册的Workflow
// GET /api/v1/workflows
func (h *WorkflowHandler) List(c *gin.Context) {
	workflows := h.engine.Workflows()

	items := make([]dto.WorkflowSummary, 0, len(workflows))
	for _, wf := range workflows {
		items = append(items, dto.WorkflowSummary{
			ID:          wf.ID,
			Name:        wf.Name,
			Description: wf.Description,
			TaskCount:   len(wf.Tasks),
			BranchCount: len(wf.Branches),
			Parallel:    wf.Parallel,
		})
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.WorkflowSummary]{
		Total: len(items),
		Items: items,
	}))
}

// Get 获取Workflow详情
// GET /api/v1/workflows/:id
func (h *WorkflowHandler) Get(c *gin.Context) {
	id := c.Param("id")

	wf, ok := h.engine.GetWorkflow(id)
	if !ok {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "Workflow不存在"))
		return
	}

	tasks := make([]dto.TaskSummary, 0, len(wf.TaskOrder))
	deps := make(map[string][]string, len(wf.TaskOrder))
	for _, taskID := range wf.TaskOrder {
		spec := wf.Tasks[taskID]
		tasks = append(tasks, dto.TaskSummary{
			ID:              spec.ID,
			Name:            spec.Name,
			Handler:         spec.HandlerName,
			Dependencies:    spec.DependsOn,
			Timeout:         spec.TimeoutSeconds,
			MaxRetries:      spec.MaxRetries,
			ContinueOnError: spec.ContinueOnError,
		})
		if len(spec.DependsOn) > 0 {
			deps[taskID] = spec.DependsOn
		}
	}

	detail := dto.WorkflowDetail{
		WorkflowSummary: dto.WorkflowSummary{
			ID:          wf.ID,
			Name:        wf.Name,
			Description: wf.Description,
			TaskCount:   len(wf.Tasks),
			BranchCount: len(wf.Branches),
			Parallel:    wf.Parallel,
		},
		Tasks:        tasks,
		Dependencies: deps,
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(detail))
}

// Submit 提交一次运行
// POST /api/v1/workflows/:id/submit
func (h *WorkflowHandler) Submit(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var req dto.SubmitRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("请求体错误: %v", err)))
		return
	}

	runID, err := h.engine.SubmitByIDWithParams(ctx, id, req.Params)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("提交失败: %v", err)))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.SubmitResponse{
		RunID:   runID,
		Message: "运行已提交",
	}))
}

// History 查询Workflow的运行历史
// GET /api/v1/workflows/:id/history
func (h *WorkflowHandler) History(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var query dto.ListQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("查询参数错误: %v", err)))
		return
	}

	snapshots, err := h.engine.ListRuns(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询运行历史失败: %v", err)))
		return
	}

	var items []dto.RunSummary
	for _, snap := range snapshots {
		if query.Status != "" && string(snap.Status) != query.Status {
			continue
		}
		items = append(items, toRunSummary(snap))
	}

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

// ScheduleCron 为Workflow注册定时调度
// POST /api/v1/cron
func (h *WorkflowHandler) ScheduleCron(c *gin.Context) {
	var req dto.ScheduleCronRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("请求体错误: %v", err)))
		return
	}

	job, err := h.engine.ScheduleCron(req.JobID, req.WorkflowID, req.Expression)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("注册定时调度失败: %v", err)))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(toCronJobDetail(job)))
}

// ListCron 列出定时任务
// GET /api/v1/cron
func (h *WorkflowHandler) ListCron(c *gin.Context) {
	jobs := h.engine.Scheduler().Jobs()
	items := make([]dto.CronJobDetail, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, toCronJobDetail(job))
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.CronJobDetail]{
		Total: len(items),
		Items: items,
	}))
}

// SetCronEnabled 启停定时任务
// POST /api/v1/cron/:id/enabled
func (h *WorkflowHandler) SetCronEnabled(c *gin.Context) {
	id := c.Param("id")

	var req dto.SetCronEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("请求体错误: %v", err)))
		return
	}

	if err := h.engine.Scheduler().SetEnabled(id, req.Enabled); err != nil {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, fmt.Sprintf("定时任务不存在: %v", err)))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"message": "已更新",
		"id":      id,
	}))
}

// UnscheduleCron 删除定时任务
// DELETE /api/v1/cron/:id
func (h *WorkflowHandler) UnscheduleCron(c *gin.Context) {
	id := c.Param("id")

	if err := h.engine.UnscheduleCron(id); err != nil {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, fmt.Sprintf("定时任务不存在: %v", err)))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"message": "已删除",
		"id":      id,
	}))
}

// toCronJobDetail CronJob转DTO
func toCronJobDetail(job *engine.CronJob) dto.CronJobDetail {
	detail := dto.CronJobDetail{
		ID:         job.ID,
		WorkflowID: job.WorkflowID,
		Expression: job.Expr,
		Enabled:    job.Enabled,
		RunCount:   job.RunCount,
	}
	if !job.NextFire.IsZero() {
		next := job.NextFire
		detail.NextFire = &next
	}
	if !job.LastFire.IsZero() {
		last := job.LastFire
		detail.LastFire = &last
	}
	return detail
}
