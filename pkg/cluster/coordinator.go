package cluster

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stevelan1995/workflow-engine/pkg/core/resource"
	"github.com/stevelan1995/workflow-engine/pkg/core/task"
	"github.com/stevelan1995/workflow-engine/pkg/core/workflow"
)

// WorkerState Worker可达性状态（对外导出）
type WorkerState string

const (
	WorkerOnline      WorkerState = "ONLINE"
	WorkerUnreachable WorkerState = "UNREACHABLE"
)

// WorkerInfo Worker注册表条目（对外导出）
type WorkerInfo struct {
	ID            string          `json:"id"`
	Addr          string          `json:"addr"`
	Capacity      resource.Limits `json:"capacity"`
	CurrentLoad   int             `json:"current_load"`
	LastHeartbeat time.Time       `json:"last_heartbeat"`
	State         WorkerState     `json:"state"`
}

// WorkerConn 协调器到Worker的下行通道（对外导出）
// WebSocket连接与进程内管道都实现此接口
type WorkerConn interface {
	Send(msg *Message) error
	Close() error
}

// CoordinatorConfig 协调器配置（对外导出）
type CoordinatorConfig struct {
	HeartbeatInterval time.Duration // 心跳间隔
	MissThreshold     int           // 判定失联的连续缺失心跳次数
	DispatchWait      time.Duration // 无可用Worker时的排队上限
}

// DefaultCoordinatorConfig 返回默认协调器配置（对外导出）
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		HeartbeatInterval: time.Second,
		MissThreshold:     5,
		DispatchWait:      30 * time.Second,
	}
}

// Stats 协调器统计快照（对外导出）
type Stats struct {
	Workers      int `json:"workers"`
	Online       int `json:"online"`
	Inflight     int `json:"inflight"`
	Completed    int `json:"completed"`
	Failed       int `json:"failed"`
	Redispatched int `json:"redispatched"`
}

// workerEntry 注册表条目（内部结构）
type workerEntry struct {
	info WorkerInfo
	conn WorkerConn
}

// dispatchState 在途派发（内部结构）
type dispatchState struct {
	payload  *DispatchPayload
	workerID string
	result   chan *ResultPayload
	requeue  chan struct{} // 承载Worker失联后的重派信号
}

// Coordinator 集群协调器（对外导出）
// 持有权威的Worker注册表，实现executor.Dispatcher接口，
// 引擎换用协调器派发即切换为分布式执行
type Coordinator struct {
	mu        sync.RWMutex
	cfg       CoordinatorConfig
	workers   map[string]*workerEntry
	inflight  map[string]*dispatchState
	completed int
	failed    int
	redisp    int
	stop      chan struct{}
	running   bool
}

// NewCoordinator 创建协调器实例（对外导出）
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = time.Second
	}
	if cfg.MissThreshold <= 0 {
		cfg.MissThreshold = 5
	}
	if cfg.DispatchWait <= 0 {
		cfg.DispatchWait = 30 * time.Second
	}
	return &Coordinator{
		cfg:      cfg,
		workers:  make(map[string]*workerEntry),
		inflight: make(map[string]*dispatchState),
	}
}

// Start 启动健康检查循环（对外导出）
func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.checkWorkerHealth(time.Now())
			case <-stop:
				return
			}
		}
	}()
	log.Println("✅ 集群协调器已启动")
}

// Stop 停止协调器（对外导出）
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stop)
	for _, entry := range c.workers {
		if entry.conn != nil {
			entry.conn.Close()
		}
	}
	log.Println("✅ 集群协调器已停止")
}

// AddWorker 注册Worker（对外导出）
// 同ID重复注册视为重连，覆盖连接并恢复在线状态
func (c *Coordinator) AddWorker(payload *RegisterPayload, conn WorkerConn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workers[payload.WorkerID] = &workerEntry{
		info: WorkerInfo{
			ID:            payload.WorkerID,
			Addr:          payload.Addr,
			Capacity:      payload.Capacity,
			LastHeartbeat: time.Now(),
			State:         WorkerOnline,
		},
		conn: conn,
	}
	log.Printf("✅ [协调器] Worker已注册: ID=%s, Addr=%s, 容量=%+v", payload.WorkerID, payload.Addr, payload.Capacity)
}

// RemoveWorker 注销Worker并重派其在途任务（对外导出）
func (c *Coordinator) RemoveWorker(workerID string) {
	c.mu.Lock()
	entry, ok := c.workers[workerID]
	if ok {
		delete(c.workers, workerID)
	}
	var toRequeue []*dispatchState
	for _, ds := range c.inflight {
		if ds.workerID == workerID {
			toRequeue = append(toRequeue, ds)
		}
	}
	c.mu.Unlock()

	if ok && entry.conn != nil {
		entry.conn.Close()
	}
	for _, ds := range toRequeue {
		c.signalRequeue(ds)
	}
	log.Printf("⚠️ [协调器] Worker已移除: ID=%s, 重派任务数=%d", workerID, len(toRequeue))
}

// HandleMessage 处理Worker上行消息（对外导出）
func (c *Coordinator) HandleMessage(msg *Message) {
	switch msg.Type {
	case MsgHeartbeat:
		if msg.Heartbeat != nil {
			c.onHeartbeat(msg.Heartbeat)
		}
	case MsgResult:
		if msg.Result != nil {
			c.onResult(msg.Result)
		}
	}
}

// onHeartbeat 更新心跳与负载（内部方法）
// 失联Worker恢复心跳后重新进入在线状态
func (c *Coordinator) onHeartbeat(hb *HeartbeatPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.workers[hb.WorkerID]
	if !ok {
		return
	}
	entry.info.LastHeartbeat = hb.Timestamp
	if entry.info.LastHeartbeat.IsZero() {
		entry.info.LastHeartbeat = time.Now()
	}
	entry.info.CurrentLoad = hb.Load
	if entry.info.State == WorkerUnreachable {
		entry.info.State = WorkerOnline
		log.Printf("✅ [协调器] Worker恢复在线: ID=%s", hb.WorkerID)
	}
}

// onResult 交付执行结果（内部方法）
func (c *Coordinator) onResult(result *ResultPayload) {
	c.mu.Lock()
	ds, ok := c.inflight[result.DispatchID]
	if ok {
		delete(c.inflight, result.DispatchID)
		if entry, found := c.workers[ds.workerID]; found && entry.info.CurrentLoad > 0 {
			entry.info.CurrentLoad--
		}
		if result.Error == "" {
			c.completed++
		} else {
			c.failed++
		}
	}
	c.mu.Unlock()
	if !ok {
		// 重派后旧Worker的迟到结果，至少一次语义下直接丢弃
		log.Printf("⚠️ [协调器] 收到未知派发的结果: DispatchID=%s, Worker=%s", result.DispatchID, result.WorkerID)
		return
	}
	select {
	case ds.result <- result:
	default:
	}
}

// checkWorkerHealth 标记超时未心跳的Worker并重派其任务（内部方法）
func (c *Coordinator) checkWorkerHealth(now time.Time) {
	timeout := c.cfg.HeartbeatInterval * time.Duration(c.cfg.MissThreshold)
	c.mu.Lock()
	var toRequeue []*dispatchState
	for id, entry := range c.workers {
		if entry.info.State != WorkerOnline {
			continue
		}
		if now.Sub(entry.info.LastHeartbeat) <= timeout {
			continue
		}
		entry.info.State = WorkerUnreachable
		log.Printf("⚠️ [协调器] Worker失联: ID=%s, 最后心跳=%s", id, entry.info.LastHeartbeat.Format(time.RFC3339))
		for _, ds := range c.inflight {
			if ds.workerID == id {
				toRequeue = append(toRequeue, ds)
			}
		}
	}
	c.redisp += len(toRequeue)
	c.mu.Unlock()

	for _, ds := range toRequeue {
		c.signalRequeue(ds)
	}
}

// signalRequeue 通知派发方重新选择Worker（内部方法）
func (c *Coordinator) signalRequeue(ds *dispatchState) {
	select {
	case ds.requeue <- struct{}{}:
	default:
	}
}

// place 选择目标Worker（内部方法）
// 规则：在线且容量满足需求的Worker中当前负载最低者，并列时取ID最小者
func (c *Coordinator) place(req resource.Requirements) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.workers))
	for id := range c.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	best := ""
	bestLoad := -1
	for _, id := range ids {
		entry := c.workers[id]
		if entry.info.State != WorkerOnline {
			continue
		}
		if !req.Fits(entry.info.Capacity) {
			continue
		}
		if best == "" || entry.info.CurrentLoad < bestLoad {
			best = id
			bestLoad = entry.info.CurrentLoad
		}
	}
	if best == "" {
		return "", fmt.Errorf("没有满足资源需求的在线Worker")
	}
	c.workers[best].info.CurrentLoad++
	return best, nil
}

// unplace 回退一次负载计数（内部方法）
func (c *Coordinator) unplace(workerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.workers[workerID]; ok && entry.info.CurrentLoad > 0 {
		entry.info.CurrentLoad--
	}
}

// Dispatch 实现executor.Dispatcher接口（对外导出）
// 无可用Worker时排队至DispatchWait上限；Worker失联时自动重派。
// 同一任务可能被执行多次（至少一次语义）
func (c *Coordinator) Dispatch(taskCtx *task.Context, spec *workflow.TaskSpec) (map[string]interface{}, error) {
	payload := &DispatchPayload{
		DispatchID: uuid.New().String(),
		RunID:      taskCtx.RunID,
		WorkflowID: taskCtx.WorkflowID,
		Spec:       spec,
		Iteration:  taskCtx.Iteration,
		Params:     taskCtx.Params,
		RunContext: taskCtx.RunContext,
	}
	ds := &dispatchState{
		payload: payload,
		result:  make(chan *ResultPayload, 1),
		requeue: make(chan struct{}, 1),
	}

	deadline := time.NewTimer(c.cfg.DispatchWait)
	defer deadline.Stop()

	for {
		if err := c.sendToWorker(ds, spec.Requirements, deadline.C, taskCtx); err != nil {
			return nil, err
		}

		select {
		case result := <-ds.result:
			if result.Error != "" {
				kind := workflow.ErrorKind(result.ErrorKind)
				if kind == "" {
					kind = workflow.ErrKindHandler
				}
				return nil, workflow.NewExecutionError(kind, spec.ID, fmt.Errorf("%s", result.Error))
			}
			return result.Output, nil
		case <-ds.requeue:
			// Worker失联，回到Worker选择流程重派
			log.Printf("🔄 [协调器] 重派任务: DispatchID=%s, Task=%s", payload.DispatchID, spec.ID)
			continue
		case <-taskCtx.Done():
			c.abandon(ds)
			return nil, taskCtx.Err()
		}
	}
}

// sendToWorker 选择Worker并下发任务（内部方法）
// 排到DispatchWait上限仍无可用Worker时报ResourceUnavailable
func (c *Coordinator) sendToWorker(ds *dispatchState, req resource.Requirements, deadline <-chan time.Time, taskCtx *task.Context) error {
	for {
		workerID, err := c.place(req)
		if err == nil {
			c.mu.Lock()
			ds.workerID = workerID
			c.inflight[ds.payload.DispatchID] = ds
			entry := c.workers[workerID]
			c.mu.Unlock()

			if sendErr := entry.conn.Send(&Message{Type: MsgDispatch, Dispatch: ds.payload}); sendErr != nil {
				// 下发失败视为该Worker不可用，立即换一个
				log.Printf("⚠️ [协调器] 下发失败: Worker=%s, err=%v", workerID, sendErr)
				c.mu.Lock()
				delete(c.inflight, ds.payload.DispatchID)
				c.mu.Unlock()
				c.unplace(workerID)
				continue
			}
			return nil
		}

		select {
		case <-deadline:
			c.abandon(ds)
			return workflow.NewExecutionError(workflow.ErrKindResourceUnavailable, ds.payload.Spec.ID,
				fmt.Errorf("等待可用Worker超时（%s）", c.cfg.DispatchWait))
		case <-taskCtx.Done():
			c.abandon(ds)
			return taskCtx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// abandon 放弃一次派发（内部方法）
func (c *Coordinator) abandon(ds *dispatchState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight[ds.payload.DispatchID]; ok {
		delete(c.inflight, ds.payload.DispatchID)
		if entry, found := c.workers[ds.workerID]; found && entry.info.CurrentLoad > 0 {
			entry.info.CurrentLoad--
		}
	}
}

// Workers 返回注册表快照，按ID排序（对外导出）
func (c *Coordinator) Workers() []WorkerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	infos := make([]WorkerInfo, 0, len(c.workers))
	for _, entry := range c.workers {
		infos = append(infos, entry.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// GetStats 返回协调器统计快照（对外导出）
func (c *Coordinator) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := Stats{
		Workers:      len(c.workers),
		Inflight:     len(c.inflight),
		Completed:    c.completed,
		Failed:       c.failed,
		Redispatched: c.redisp,
	}
	for _, entry := range c.workers {
		if entry.info.State == WorkerOnline {
			stats.Online++
		}
	}
	return stats
}
