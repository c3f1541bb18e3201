package dto

import "time"

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// WorkflowSummary Workflow摘要信息
type WorkflowSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TaskCount   int    `json:"task_count"`
	BranchCount int    `json:"branch_count"`
	Parallel    bool   `json:"parallel"`
}

// WorkflowDetail Workflow详细信息
type WorkflowDetail struct {
	WorkflowSummary
	Tasks        []TaskSummary       `json:"tasks"`
	Dependencies map[string][]string `json:"dependencies"`
}

// TaskSummary Task摘要信息
type TaskSummary struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Handler         string   `json:"handler"`
	Dependencies    []string `json:"dependencies,omitempty"`
	Timeout         int      `json:"timeout,omitempty"`
	MaxRetries      int      `json:"max_retries,omitempty"`
	ContinueOnError bool     `json:"continue_on_error,omitempty"`
}

// RunSummary 运行摘要信息
type RunSummary struct {
	ID           string     `json:"id"`
	WorkflowID   string     `json:"workflow_id"`
	WorkflowName string     `json:"workflow_name"`
	Status       string     `json:"status"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Duration     string     `json:"duration,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// RunDetail 运行详细信息
type RunDetail struct {
	RunSummary
	Progress ProgressInfo           `json:"progress"`
	Tasks    []TaskExecutionDetail  `json:"tasks"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// ProgressInfo 进度信息
type ProgressInfo struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Running   int `json:"running"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Pending   int `json:"pending"`
}

// TaskExecutionDetail 任务执行详细信息
type TaskExecutionDetail struct {
	InstanceID   string     `json:"instance_id"`
	TaskID       string     `json:"task_id"`
	Iteration    int        `json:"iteration,omitempty"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Duration     string     `json:"duration,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// SubmitResponse 提交响应
type SubmitResponse struct {
	RunID   string `json:"run_id"`
	Message string `json:"message"`
}

// ResourceResponse 资源池状态响应
type ResourceResponse struct {
	TotalCPUCores        float64 `json:"total_cpu_cores"`
	TotalMemoryMB        int64   `json:"total_memory_mb"`
	TotalGPUDevices      int     `json:"total_gpu_devices"`
	TotalConcurrentSlots int     `json:"total_concurrent_slots"`
	UsedCPUCores         float64 `json:"used_cpu_cores"`
	UsedMemoryMB         int64   `json:"used_memory_mb"`
	UsedGPUDevices       int     `json:"used_gpu_devices"`
	UsedConcurrentSlots  int     `json:"used_concurrent_slots"`
	QueueLength          int     `json:"queue_length"`
}

// WorkerSummary Worker摘要信息
type WorkerSummary struct {
	ID            string    `json:"id"`
	Addr          string    `json:"addr,omitempty"`
	State         string    `json:"state"`
	CurrentLoad   int       `json:"current_load"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// ClusterStatsResponse 集群统计响应
type ClusterStatsResponse struct {
	Workers      int `json:"workers"`
	Online       int `json:"online"`
	Inflight     int `json:"inflight"`
	Completed    int `json:"completed"`
	Failed       int `json:"failed"`
	Redispatched int `json:"redispatched"`
}

// CronJobDetail 定时任务详细信息
type CronJobDetail struct {
	ID         string     `json:"id"`
	WorkflowID string     `json:"workflow_id"`
	Expression string     `json:"expression"`
	Enabled    bool       `json:"enabled"`
	NextFire   *time.Time `json:"next_fire,omitempty"`
	LastFire   *time.Time `json:"last_fire,omitempty"`
	RunCount   int        `json:"run_count"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// ListResponse 列表响应
type ListResponse[T any] struct {
	Total   int  `json:"total"`
	Items   []T  `json:"items"`
	HasMore bool `json:"has_more"`
}
