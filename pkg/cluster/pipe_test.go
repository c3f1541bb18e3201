package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 接收方停止消费时，下行Send与Close不得互相卡死
func TestPipeCloseWithStalledReceiver(t *testing.T) {
	conn := AttachWorker(nil).(*pipeConn)
	side := (*pipeWorkerSide)(conn)

	// 填满下行缓冲，再追加一个阻塞中的发送
	for i := 0; i < cap(conn.down); i++ {
		require.NoError(t, side.Send(&Message{Type: MsgHeartbeat}))
	}
	blocked := make(chan error, 1)
	go func() {
		blocked <- side.Send(&Message{Type: MsgHeartbeat})
	}()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		_ = conn.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("接收方停摆时Close未能返回")
	}

	select {
	case err := <-blocked:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("阻塞中的发送未被关闭信号解除")
	}

	// 缓冲内已入队的消息仍可读完，随后通道正常收尾
	drained := 0
	for range conn.Messages() {
		drained++
	}
	assert.Equal(t, cap(conn.down), drained)

	assert.Error(t, side.Send(&Message{Type: MsgHeartbeat}))
	assert.NoError(t, conn.Close())
}
