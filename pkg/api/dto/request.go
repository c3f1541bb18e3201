package dto

// SubmitRunRequest 提交运行请求
type SubmitRunRequest struct {
	Params map[string]interface{} `json:"params" binding:"omitempty"`
}

// ScheduleCronRequest 注册定时调度请求
type ScheduleCronRequest struct {
	JobID      string `json:"job_id" binding:"required"`
	WorkflowID string `json:"workflow_id" binding:"required"`
	Expression string `json:"expression" binding:"required"`
}

// SetCronEnabledRequest 启停定时调度请求
type SetCronEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ListQueryRequest 通用列表查询请求
type ListQueryRequest struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
	Status string `form:"status" binding:"omitempty"`
}

// GetDefaultLimit 获取默认limit
func (r *ListQueryRequest) GetDefaultLimit() int {
	if r.Limit <= 0 {
		return 20
	}
	return r.Limit
}
