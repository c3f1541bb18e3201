package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stevelan1995/workflow-engine/pkg/api/dto"
)

// Client 工作流引擎HTTP API客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New 创建客户端
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ========== Workflow API ==========

// ListWorkflows 列出已注册的Workflow
func (c *Client) ListWorkflows() (*dto.ListResponse[dto.WorkflowSummary], error) {
	var resp dto.APIResponse[dto.ListResponse[dto.WorkflowSummary]]
	if err := c.get("/api/v1/workflows", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// GetWorkflow 获取Workflow详情
func (c *Client) GetWorkflow(id string) (*dto.WorkflowDetail, error) {
	var resp dto.APIResponse[dto.WorkflowDetail]
	if err := c.get("/api/v1/workflows/"+id, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// SubmitWorkflow 提交一次运行
func (c *Client) SubmitWorkflow(id string, params map[string]interface{}) (*dto.SubmitResponse, error) {
	req := dto.SubmitRunRequest{Params: params}
	var resp dto.APIResponse[dto.SubmitResponse]
	if err := c.post("/api/v1/workflows/"+id+"/submit", req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// GetWorkflowHistory 查询Workflow运行历史
func (c *Client) GetWorkflowHistory(id, status string, limit, offset int) (*dto.ListResponse[dto.RunSummary], error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	if offset > 0 {
		query.Set("offset", fmt.Sprintf("%d", offset))
	}
	path := "/api/v1/workflows/" + id + "/history"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp dto.APIResponse[dto.ListResponse[dto.RunSummary]]
	if err := c.get(path, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// ========== Run API ==========

// ListRuns 列出运行记录
func (c *Client) ListRuns(workflowID, status string, limit, offset int) (*dto.ListResponse[dto.RunSummary], error) {
	query := url.Values{}
	if workflowID != "" {
		query.Set("workflow_id", workflowID)
	}
	if status != "" {
		query.Set("status", status)
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	if offset > 0 {
		query.Set("offset", fmt.Sprintf("%d", offset))
	}
	path := "/api/v1/runs"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp dto.APIResponse[dto.ListResponse[dto.RunSummary]]
	if err := c.get(path, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// GetRun 获取运行详情
func (c *Client) GetRun(id string) (*dto.RunDetail, error) {
	var resp dto.APIResponse[dto.RunDetail]
	if err := c.get("/api/v1/runs/"+id, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// GetRunTasks 获取运行的任务执行状态
func (c *Client) GetRunTasks(id string) ([]dto.TaskExecutionDetail, error) {
	var resp dto.APIResponse[[]dto.TaskExecutionDetail]
	if err := c.get("/api/v1/runs/"+id+"/tasks", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return resp.Data, nil
}

// CancelRun 取消运行
func (c *Client) CancelRun(id string) error {
	var resp dto.APIResponse[map[string]string]
	if err := c.post("/api/v1/runs/"+id+"/cancel", nil, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return errors.New(resp.Message)
	}
	return nil
}

// ========== Cron API ==========

// ListCronJobs 列出定时任务
func (c *Client) ListCronJobs() (*dto.ListResponse[dto.CronJobDetail], error) {
	var resp dto.APIResponse[dto.ListResponse[dto.CronJobDetail]]
	if err := c.get("/api/v1/cron", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// ScheduleCron 注册定时任务
func (c *Client) ScheduleCron(jobID, workflowID, expression string) (*dto.CronJobDetail, error) {
	req := dto.ScheduleCronRequest{JobID: jobID, WorkflowID: workflowID, Expression: expression}
	var resp dto.APIResponse[dto.CronJobDetail]
	if err := c.post("/api/v1/cron", req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// SetCronEnabled 启停定时任务
func (c *Client) SetCronEnabled(jobID string, enabled bool) error {
	req := dto.SetCronEnabledRequest{Enabled: enabled}
	var resp dto.APIResponse[map[string]string]
	if err := c.post("/api/v1/cron/"+jobID+"/enabled", req, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return errors.New(resp.Message)
	}
	return nil
}

// UnscheduleCron 删除定时任务
func (c *Client) UnscheduleCron(jobID string) error {
	var resp dto.APIResponse[map[string]string]
	if err := c.delete("/api/v1/cron/"+jobID, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return errors.New(resp.Message)
	}
	return nil
}

// ========== Cluster API ==========

// ListWorkers 列出集群Worker
func (c *Client) ListWorkers() (*dto.ListResponse[dto.WorkerSummary], error) {
	var resp dto.APIResponse[dto.ListResponse[dto.WorkerSummary]]
	if err := c.get("/api/v1/cluster/workers", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// GetClusterStats 查询集群统计
func (c *Client) GetClusterStats() (*dto.ClusterStatsResponse, error) {
	var resp dto.APIResponse[dto.ClusterStatsResponse]
	if err := c.get("/api/v1/cluster/stats", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// GetResources 查询资源池状态
func (c *Client) GetResources() (*dto.ResourceResponse, error) {
	var resp dto.APIResponse[dto.ResourceResponse]
	if err := c.get("/api/v1/resources", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// ========== HTTP helpers ==========

func (c *Client) get(path string, result interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp, result)
}

func (c *Client) post(path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", reqBody)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp, result)
}

func (c *Client) delete(path string, result interface{}) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("构建请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp, result)
}

func (c *Client) parseResponse(resp *http.Response, result interface{}) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("解析响应失败 (status=%d): %w", resp.StatusCode, err)
	}
	return nil
}
