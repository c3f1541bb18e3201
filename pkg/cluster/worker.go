package cluster

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stevelan1995/workflow-engine/pkg/core/resource"
	"github.com/stevelan1995/workflow-engine/pkg/core/task"
	"github.com/stevelan1995/workflow-engine/pkg/core/workflow"
)

// CoordinatorConn Worker到协调器的双向通道（对外导出）
type CoordinatorConn interface {
	Send(msg *Message) error
	Messages() <-chan *Message
	Close() error
}

// WorkerConfig Worker配置（对外导出）
type WorkerConfig struct {
	ID                string
	Addr              string
	Capacity          resource.Limits
	MaxConcurrent     int           // 本地并发上限
	HeartbeatInterval time.Duration // 心跳发送间隔
}

// Worker 集群执行节点（对外导出）
// 连接协调器后注册自身容量，接收派发、在本地函数注册中心
// 解析处理函数执行，并把结果回传
type Worker struct {
	cfg      WorkerConfig
	registry *task.FunctionRegistry
	conn     CoordinatorConn

	mu      sync.Mutex
	load    int
	sem     chan struct{}
	stop    chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// NewWorker 创建Worker实例（对外导出）
func NewWorker(cfg WorkerConfig, registry *task.FunctionRegistry, conn CoordinatorConn) (*Worker, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("WorkerID不能为空")
	}
	if registry == nil {
		return nil, fmt.Errorf("函数注册中心不能为空")
	}
	if conn == nil {
		return nil, fmt.Errorf("协调器连接不能为空")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = time.Second
	}
	return &Worker{
		cfg:      cfg,
		registry: registry,
		conn:     conn,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		stop:     make(chan struct{}),
	}, nil
}

// Start 注册并开始接收派发（对外导出）
func (w *Worker) Start() error {
	register := &Message{Type: MsgRegister, Register: &RegisterPayload{
		WorkerID: w.cfg.ID,
		Addr:     w.cfg.Addr,
		Capacity: w.cfg.Capacity,
		Handlers: w.registry.Names(),
	}}
	if err := w.conn.Send(register); err != nil {
		return fmt.Errorf("注册失败: %w", err)
	}

	go w.heartbeatLoop()
	go w.receiveLoop()
	log.Printf("✅ [Worker] 已启动: ID=%s, 容量=%+v, 并发上限=%d", w.cfg.ID, w.cfg.Capacity, w.cfg.MaxConcurrent)
	return nil
}

// Stop 停止Worker并等待在途任务完成（对外导出）
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.stop)
	w.mu.Unlock()

	w.wg.Wait()
	w.conn.Close()
	log.Printf("✅ [Worker] 已停止: ID=%s", w.cfg.ID)
}

// CurrentLoad 返回当前在途任务数（对外导出）
func (w *Worker) CurrentLoad() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.load
}

// heartbeatLoop 周期发送心跳与负载（内部方法）
func (w *Worker) heartbeatLoop() {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			hb := &Message{Type: MsgHeartbeat, Heartbeat: &HeartbeatPayload{
				WorkerID:  w.cfg.ID,
				Load:      w.CurrentLoad(),
				Timestamp: time.Now(),
			}}
			if err := w.conn.Send(hb); err != nil {
				log.Printf("⚠️ [Worker] 心跳发送失败: ID=%s, err=%v", w.cfg.ID, err)
			}
		case <-w.stop:
			return
		}
	}
}

// receiveLoop 接收并处理协调器下发的消息（内部方法）
func (w *Worker) receiveLoop() {
	for {
		select {
		case msg, ok := <-w.conn.Messages():
			if !ok {
				return
			}
			if msg.Type == MsgDispatch && msg.Dispatch != nil {
				w.wg.Add(1)
				go w.execute(msg.Dispatch)
			}
		case <-w.stop:
			return
		}
	}
}

// execute 执行一次派发并回传结果（内部方法）
func (w *Worker) execute(payload *DispatchPayload) {
	defer w.wg.Done()

	w.sem <- struct{}{}
	w.mu.Lock()
	w.load++
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.load--
		w.mu.Unlock()
		<-w.sem
	}()

	spec := payload.Spec
	result := &ResultPayload{DispatchID: payload.DispatchID, WorkerID: w.cfg.ID}

	fn, ok := w.registry.Get(spec.HandlerName)
	if !ok {
		result.Error = fmt.Sprintf("处理函数 %s 未注册", spec.HandlerName)
		result.ErrorKind = string(workflow.ErrKindHandler)
		w.sendResult(result)
		return
	}

	timeoutSecs := spec.TimeoutSeconds
	if timeoutSecs <= 0 {
		timeoutSecs = 300
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	taskCtx := task.NewContext(ctx, spec.ID, spec.Name, payload.WorkflowID, payload.RunID,
		payload.Iteration, payload.Params, payload.RunContext)

	log.Printf("📞 [Worker] 执行任务: ID=%s, Task=%s, Handler=%s", w.cfg.ID, spec.ID, spec.HandlerName)
	output, err := fn(taskCtx)
	if err != nil {
		result.Error = err.Error()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.ErrorKind = string(workflow.ErrKindTimeout)
		} else {
			result.ErrorKind = string(workflow.ErrKindHandler)
		}
	} else {
		result.Output = output
	}
	w.sendResult(result)
}

// sendResult 回传结果（内部方法）
func (w *Worker) sendResult(result *ResultPayload) {
	if err := w.conn.Send(&Message{Type: MsgResult, Result: result}); err != nil {
		log.Printf("⚠️ [Worker] 结果回传失败: ID=%s, DispatchID=%s, err=%v", w.cfg.ID, result.DispatchID, err)
	}
}
