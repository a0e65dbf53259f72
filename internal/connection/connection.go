// Package connection 实现了客户端连接与房间的管理
package connection

import (
	"errors"
	"sync"

	"github.com/oklog/ulid/v2"
)

var (
	ErrConnectionClosed  = errors.New("connection closed")
	ErrSlowConsumer      = errors.New("send buffer full")
	ErrUnknownConnection = errors.New("unknown connection")
)

// NewConnID 生成按时间排序的连接 ID
func NewConnID() string {
	return ulid.Make().String()
}

// Connection 表示一个客户端连接, 出站数据经由缓冲通道交给写协程
type Connection struct {
	ConnID    string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewConnection(connID string, buffer int) *Connection {
	if buffer <= 0 {
		buffer = 1
	}
	return &Connection{
		ConnID: connID,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// Outbound 写协程从这里取待发送的帧
func (c *Connection) Outbound() <-chan []byte {
	return c.send
}

// Done 在连接关闭后关闭
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Connection) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// enqueue 不阻塞; 缓冲区满说明客户端消费过慢
func (c *Connection) enqueue(data []byte) error {
	if c.Closed() {
		return ErrConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSlowConsumer
	}
}
