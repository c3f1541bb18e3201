package handler

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/stevelan1995/workflow-engine/pkg/api/dto"
	"github.com/stevelan1995/workflow-engine/pkg/cluster"
	"github.com/stevelan1995/workflow-engine/pkg/core/engine"
)

// ClusterHandler 集群与资源API处理器
// coordinator为nil时表示单机模式，集群接口返回503
type ClusterHandler struct {
	engine      *engine.Engine
	coordinator *cluster.Coordinator
}

// NewClusterHandler 创建ClusterHandler
func NewClusterHandler(eng *engine.Engine, coordinator *cluster.Coordinator) *ClusterHandler {
	return &ClusterHandler{engine: eng, coordinator: coordinator}
}

// Resources 查询本地资源池状态
// GET /api/v1/resources
func (h *ClusterHandler) Resources(c *gin.Context) {
	limits := h.engine.Pool().Limits()
	usage := h.engine.Pool().Snapshot()

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ResourceResponse{
		TotalCPUCores:        limits.CPUCores,
		TotalMemoryMB:        limits.MemoryMB,
		TotalGPUDevices:      limits.GPUDevices,
		TotalConcurrentSlots: limits.ConcurrentSlots,
		UsedCPUCores:         usage.CPUCores,
		UsedMemoryMB:         usage.MemoryMB,
		UsedGPUDevices:       usage.GPUDevices,
		UsedConcurrentSlots:  usage.ConcurrentSlots,
		QueueLength:          h.engine.Pool().QueueLength(),
	}))
}

// Workers 列出集群Worker
// GET /api/v1/cluster/workers
func (h *ClusterHandler) Workers(c *gin.Context) {
	if h.coordinator == nil {
		c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(503, "未启用集群模式"))
		return
	}

	workers := h.coordinator.Workers()
	items := make([]dto.WorkerSummary, 0, len(workers))
	for _, w := range workers {
		items = append(items, dto.WorkerSummary{
			ID:            w.ID,
			Addr:          w.Addr,
			State:         string(w.State),
			CurrentLoad:   w.CurrentLoad,
			LastHeartbeat: w.LastHeartbeat,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.WorkerSummary]{
		Total: len(items),
		Items: items,
	}))
}

// Stats 查询集群统计
// GET /api/v1/cluster/stats
func (h *ClusterHandler) Stats(c *gin.Context) {
	if h.coordinator == nil {
		c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(503, "未启用集群模式"))
		return
	}

	stats := h.coordinator.GetStats()
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ClusterStatsResponse{
		Workers:      stats.Workers,
		Online:       stats.Online,
		Inflight:     stats.Inflight,
		Completed:    stats.Completed,
		Failed:       stats.Failed,
		Redispatched: stats.Redispatched,
	}))
}
