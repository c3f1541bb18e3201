package cluster

import (
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// wsWorkerConn 协调器侧的WebSocket下行通道（内部结构）
// gorilla/websocket的写操作不允许并发，需要串行化
type wsWorkerConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Send 实现WorkerConn接口
func (c *wsWorkerConn) Send(msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Close 实现WorkerConn接口
func (c *wsWorkerConn) Close() error {
	return c.conn.Close()
}

// WSServer 协调器的WebSocket接入端（对外导出）
// Worker连入后的首帧必须是注册消息，其后为心跳与结果上行
type WSServer struct {
	coordinator *Coordinator
	upgrader    websocket.Upgrader
}

// NewWSServer 创建WebSocket接入端（对外导出）
func NewWSServer(coordinator *Coordinator) *WSServer {
	return &WSServer{
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP 实现http.Handler接口
func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️ [协调器] WebSocket升级失败: %v", err)
		return
	}

	var first Message
	if err := conn.ReadJSON(&first); err != nil || first.Type != MsgRegister || first.Register == nil {
		log.Printf("⚠️ [协调器] 首帧不是注册消息，断开连接: %v", err)
		conn.Close()
		return
	}

	workerConn := &wsWorkerConn{conn: conn}
	s.coordinator.AddWorker(first.Register, workerConn)
	workerID := first.Register.WorkerID

	// 上行读取循环；连接断开后心跳随之停止，
	// 由健康检查按缺失心跳判定失联并重派任务
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			log.Printf("⚠️ [协调器] Worker连接断开: ID=%s, err=%v", workerID, err)
			return
		}
		s.coordinator.HandleMessage(&msg)
	}
}

// WSClient Worker侧的WebSocket连接（对外导出）
// 实现CoordinatorConn接口
type WSClient struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	messages chan *Message
	closed   bool
}

// DialCoordinator 连接协调器（对外导出）
// url形如 ws://host:port/ws
func DialCoordinator(url string) (*WSClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("连接协调器失败: %w", err)
	}
	client := &WSClient{
		conn:     conn,
		messages: make(chan *Message, 64),
	}
	go client.readLoop()
	return client, nil
}

// readLoop 下行读取循环（内部方法）
func (c *WSClient) readLoop() {
	defer close(c.messages)
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.messages <- &msg
	}
}

// Send 实现CoordinatorConn接口
func (c *WSClient) Send(msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("连接已关闭")
	}
	return c.conn.WriteJSON(msg)
}

// Messages 实现CoordinatorConn接口
func (c *WSClient) Messages() <-chan *Message {
	return c.messages
}

// Close 实现CoordinatorConn接口
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
