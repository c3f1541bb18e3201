package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// 事件类型常量（对外导出）
const (
	TaskStarted       = "task.started"
	TaskSucceeded     = "task.succeeded"
	TaskFailed        = "task.failed"
	TaskSkipped       = "task.skipped"
	WorkflowStarted   = "workflow.started"
	WorkflowCompleted = "workflow.completed"
	WorkflowFailed    = "workflow.failed"
	WorkflowCancelled = "workflow.cancelled"
)

// Event 引擎事件（对外导出）
type Event struct {
	Type       string                 `json:"type"`
	RunID      string                 `json:"run_id"`
	WorkflowID string                 `json:"workflow_id"`
	TaskID     string                 `json:"task_id,omitempty"`
	InstanceID string                 `json:"instance_id,omitempty"`
	Status     string                 `json:"status,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// Handler 事件处理函数（对外导出）
// 返回的错误只做日志记录，不影响运行本身
type Handler func(*Event) error

// Bus 进程内事件总线（对外导出）
// 基于watermill gochannel实现，订阅方异常不会反压到引擎
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBus 创建事件总线实例（对外导出）
func NewBus() *Bus {
	logger := watermill.NewStdLogger(false, false)
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		}, logger),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Publish 发布事件（对外导出）
// 序列化或投递失败只记日志，不向调用方传播
func (b *Bus) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("⚠️ [事件总线] 序列化事件失败: type=%s, err=%v", event.Type, err)
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(event.Type, msg); err != nil {
		log.Printf("⚠️ [事件总线] 发布事件失败: type=%s, err=%v", event.Type, err)
	}
}

// Subscribe 订阅指定类型的事件（对外导出）
// 每个订阅独占一个消费协程；handler返回错误只做记录
func (b *Bus) Subscribe(eventType string, handler Handler) error {
	messages, err := b.pubsub.Subscribe(b.ctx, eventType)
	if err != nil {
		return err
	}
	go func() {
		for msg := range messages {
			var event Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				log.Printf("⚠️ [事件总线] 反序列化事件失败: %v", err)
				msg.Ack()
				continue
			}
			if err := handler(&event); err != nil {
				log.Printf("⚠️ [事件总线] 订阅方处理失败: type=%s, run=%s, err=%v", event.Type, event.RunID, err)
			}
			msg.Ack()
		}
	}()
	return nil
}

// Close 关闭事件总线（对外导出）
func (b *Bus) Close() error {
	b.cancel()
	return b.pubsub.Close()
}
