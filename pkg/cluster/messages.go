package cluster

import (
	"time"

	"github.com/stevelan1995/workflow-engine/pkg/core/resource"
	"github.com/stevelan1995/workflow-engine/pkg/core/workflow"
)

// MessageType 协调器与Worker之间的消息类型（对外导出）
type MessageType string

const (
	MsgRegister  MessageType = "register"  // Worker -> 协调器：上线注册
	MsgHeartbeat MessageType = "heartbeat" // Worker -> 协调器：心跳与负载
	MsgDispatch  MessageType = "dispatch"  // 协调器 -> Worker：任务派发
	MsgResult    MessageType = "result"    // Worker -> 协调器：执行结果
)

// Message 集群消息信封（对外导出）
// WebSocket上以JSON帧传输，按Type取对应负载
type Message struct {
	Type      MessageType       `json:"type"`
	Register  *RegisterPayload  `json:"register,omitempty"`
	Heartbeat *HeartbeatPayload `json:"heartbeat,omitempty"`
	Dispatch  *DispatchPayload  `json:"dispatch,omitempty"`
	Result    *ResultPayload    `json:"result,omitempty"`
}

// RegisterPayload Worker注册信息（对外导出）
type RegisterPayload struct {
	WorkerID string          `json:"worker_id"`
	Addr     string          `json:"addr"`
	Capacity resource.Limits `json:"capacity"`
	Handlers []string        `json:"handlers,omitempty"`
}

// HeartbeatPayload 心跳信息（对外导出）
type HeartbeatPayload struct {
	WorkerID  string    `json:"worker_id"`
	Load      int       `json:"load"`
	Timestamp time.Time `json:"timestamp"`
}

// DispatchPayload 任务派发信息（对外导出）
// 同一DispatchID可能因Worker失联被重复派发（至少一次语义），
// 处理函数必须幂等
type DispatchPayload struct {
	DispatchID string                 `json:"dispatch_id"`
	RunID      string                 `json:"run_id"`
	WorkflowID string                 `json:"workflow_id"`
	Spec       *workflow.TaskSpec     `json:"spec"`
	Iteration  int                    `json:"iteration,omitempty"`
	Params     map[string]interface{} `json:"params,omitempty"`
	RunContext map[string]interface{} `json:"run_context,omitempty"`
}

// ResultPayload 任务执行结果（对外导出）
type ResultPayload struct {
	DispatchID string                 `json:"dispatch_id"`
	WorkerID   string                 `json:"worker_id"`
	Output     map[string]interface{} `json:"output,omitempty"`
	Error      string                 `json:"error,omitempty"`
	ErrorKind  string                 `json:"error_kind,omitempty"`
}
