package cluster

import (
	"fmt"
	"sync"
)

// pipeConn 进程内直连通道（内部结构）
// 同时充当协调器侧的WorkerConn与Worker侧的CoordinatorConn，
// 免去本地模式与测试中的网络开销
type pipeConn struct {
	coordinator *Coordinator

	down chan *Message
	done chan struct{} // 关闭信号，先于down关闭

	mu      sync.Mutex
	sending sync.WaitGroup
	closed  bool
}

// AttachWorker 在同进程内接入Worker（对外导出）
// 返回的连接交给Worker.Start使用，注册消息会直接落到协调器
func AttachWorker(coordinator *Coordinator) CoordinatorConn {
	return &pipeConn{
		coordinator: coordinator,
		down:        make(chan *Message, 64),
		done:        make(chan struct{}),
	}
}

// Send Worker上行，直接投递给协调器（内部方法）
func (p *pipeConn) Send(msg *Message) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("连接已关闭")
	}
	p.mu.Unlock()

	if msg.Type == MsgRegister && msg.Register != nil {
		p.coordinator.AddWorker(msg.Register, (*pipeWorkerSide)(p))
		return nil
	}
	p.coordinator.HandleMessage(msg)
	return nil
}

// Messages 协调器下行通道（内部方法）
func (p *pipeConn) Messages() <-chan *Message {
	return p.down
}

// Close 关闭通道（内部方法）
// 等在途下行发送退场后才关闭down，保证接收方能感知到关闭
func (p *pipeConn) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.sending.Wait()
	close(p.down)
	return nil
}

// pipeWorkerSide 协调器持有的下行句柄（内部结构）
type pipeWorkerSide pipeConn

// Send 协调器下行推送（内部方法）
// 不持锁进入通道发送，接收方停摆时由done信号解除阻塞
func (p *pipeWorkerSide) Send(msg *Message) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("连接已关闭")
	}
	p.sending.Add(1)
	p.mu.Unlock()
	defer p.sending.Done()

	select {
	case p.down <- msg:
		return nil
	case <-p.done:
		return fmt.Errorf("连接已关闭")
	}
}

// Close 关闭通道（内部方法）
func (p *pipeWorkerSide) Close() error {
	return (*pipeConn)(p).Close()
}
