package resource

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// Requirements 任务的资源需求声明（对外导出）
// 四个维度独立核算，全部满足才允许执行
type Requirements struct {
	CPUCores        float64 `json:"cpu_cores" yaml:"cpu_cores"`
	MemoryMB        int64   `json:"memory_mb" yaml:"memory_mb"`
	GPUDevices      int     `json:"gpu_devices" yaml:"gpu_devices"`
	ConcurrentSlots int     `json:"concurrent_slots" yaml:"concurrent_slots"`
}

// Limits 资源池的总容量（对外导出）
type Limits struct {
	CPUCores        float64 `json:"cpu_cores" yaml:"cpu_cores"`
	MemoryMB        int64   `json:"memory_mb" yaml:"memory_mb"`
	GPUDevices      int     `json:"gpu_devices" yaml:"gpu_devices"`
	ConcurrentSlots int     `json:"concurrent_slots" yaml:"concurrent_slots"`
}

// Usage 当前占用快照（对外导出）
type Usage struct {
	CPUCores        float64 `json:"cpu_cores"`
	MemoryMB        int64   `json:"memory_mb"`
	GPUDevices      int     `json:"gpu_devices"`
	ConcurrentSlots int     `json:"concurrent_slots"`
}

var (
	// ErrExceedsCapacity 需求超过池总容量，永远无法满足，立即拒绝（对外导出）
	ErrExceedsCapacity = errors.New("资源需求超过资源池总容量")

	// ErrWaitTimeout 排队等待资源超时（对外导出）
	ErrWaitTimeout = errors.New("等待资源超时")

	// ErrPoolClosed 资源池已关闭（对外导出）
	ErrPoolClosed = errors.New("资源池已关闭")
)

// IsZero 判断需求是否为空（未声明任何资源）
func (r Requirements) IsZero() bool {
	return r.CPUCores == 0 && r.MemoryMB == 0 && r.GPUDevices == 0 && r.ConcurrentSlots == 0
}

// Fits 判断需求是否不超过给定容量
func (r Requirements) Fits(l Limits) bool {
	return r.CPUCores <= l.CPUCores &&
		r.MemoryMB <= l.MemoryMB &&
		r.GPUDevices <= l.GPUDevices &&
		r.ConcurrentSlots <= l.ConcurrentSlots
}

// waiter FIFO等待队列中的一个请求（内部结构）
type waiter struct {
	req   Requirements
	ready chan struct{} // 获批或池关闭时关闭
	err   error         // 关闭前写入，nil表示获批
}

// Pool 资源池（对外导出）
// 原子化的全量预留：四个维度要么全部扣减，要么全部不扣
type Pool struct {
	mu      sync.Mutex
	limits  Limits
	used    Usage
	waiters *list.List // *waiter，严格FIFO
	closed  bool
}

// NewPool 创建资源池实例（对外导出）
func NewPool(limits Limits) *Pool {
	return &Pool{
		limits:  limits,
		waiters: list.New(),
	}
}

// Limits 返回池总容量（对外导出）
func (p *Pool) Limits() Limits {
	return p.limits
}

// Snapshot 返回当前占用快照（对外导出）
func (p *Pool) Snapshot() Usage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}

// QueueLength 返回当前排队的请求数（对外导出）
func (p *Pool) QueueLength() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiters.Len()
}

// Acquire 原子化获取资源（对外导出）
// 容量不足时按FIFO排队；ctx超时或取消时返回ErrWaitTimeout；
// 需求超过总容量时立即返回ErrExceedsCapacity，不排队
func (p *Pool) Acquire(ctx context.Context, req Requirements) error {
	if req.IsZero() {
		return nil
	}
	if !req.Fits(p.limits) {
		return fmt.Errorf("%w: 需求=%+v, 容量=%+v", ErrExceedsCapacity, req, p.limits)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	// 容量足够时直接获取，否则排到队尾，等待释放后的FIFO扫描
	if p.fitsLocked(req) {
		p.reserveLocked(req)
		p.mu.Unlock()
		return nil
	}
	w := &waiter{req: req, ready: make(chan struct{})}
	elem := p.waiters.PushBack(w)
	p.mu.Unlock()

	select {
	case <-w.ready:
		return w.err
	case <-ctx.Done():
		p.mu.Lock()
		// 可能在超时的同时被获批，此时必须归还
		select {
		case <-w.ready:
			if w.err == nil {
				p.releaseLocked(req)
				p.wakeLocked()
			}
		default:
			p.waiters.Remove(elem)
		}
		p.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrWaitTimeout, ctx.Err())
	}
}

// Release 归还资源并按FIFO顺序放行装得下的等待者（对外导出）
func (p *Pool) Release(req Requirements) {
	if req.IsZero() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked(req)
	p.wakeLocked()
}

// Close 关闭资源池，唤醒所有等待者（对外导出）
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for e := p.waiters.Front(); e != nil; e = e.Next() {
		w := e.Value.(*waiter)
		w.err = ErrPoolClosed
		close(w.ready)
	}
	p.waiters.Init()
	log.Println("✅ 资源池已关闭")
}

// fitsLocked 判断当前剩余容量是否满足需求（须持有锁）
func (p *Pool) fitsLocked(req Requirements) bool {
	return p.used.CPUCores+req.CPUCores <= p.limits.CPUCores &&
		p.used.MemoryMB+req.MemoryMB <= p.limits.MemoryMB &&
		p.used.GPUDevices+req.GPUDevices <= p.limits.GPUDevices &&
		p.used.ConcurrentSlots+req.ConcurrentSlots <= p.limits.ConcurrentSlots
}

// reserveLocked 扣减资源（须持有锁）
func (p *Pool) reserveLocked(req Requirements) {
	p.used.CPUCores += req.CPUCores
	p.used.MemoryMB += req.MemoryMB
	p.used.GPUDevices += req.GPUDevices
	p.used.ConcurrentSlots += req.ConcurrentSlots
}

// releaseLocked 归还资源（须持有锁）
func (p *Pool) releaseLocked(req Requirements) {
	p.used.CPUCores -= req.CPUCores
	p.used.MemoryMB -= req.MemoryMB
	p.used.GPUDevices -= req.GPUDevices
	p.used.ConcurrentSlots -= req.ConcurrentSlots
	if p.used.CPUCores < 0 {
		p.used.CPUCores = 0
	}
	if p.used.MemoryMB < 0 {
		p.used.MemoryMB = 0
	}
	if p.used.GPUDevices < 0 {
		p.used.GPUDevices = 0
	}
	if p.used.ConcurrentSlots < 0 {
		p.used.ConcurrentSlots = 0
	}
}

// wakeLocked 按FIFO顺序扫描等待队列（须持有锁）
// 装不下的等待者留在原位，不阻塞其后已经装得下的请求
func (p *Pool) wakeLocked() {
	for e := p.waiters.Front(); e != nil; {
		next := e.Next()
		w := e.Value.(*waiter)
		if p.fitsLocked(w.req) {
			p.reserveLocked(w.req)
			p.waiters.Remove(e)
			close(w.ready)
		}
		e = next
	}
}
