package connection

import (
	"errors"

	"github.com/life-stream-dev/life-stream-go-tabletop/internal/logger"
)

// MessageSender 消息发送器接口, 同步引擎只通过它接触传输层
type MessageSender interface {
	SendMessage(connID string, data []byte) error
	Broadcast(room string, data []byte) int
	JoinRoom(connID, room string) error
	LeaveRoom(connID string)
	RoomOf(connID string) (string, bool)
	RoomSize(room string) int
}

var _ MessageSender = (*ConnectionManager)(nil)

// SendMessage 发送消息到指定客户端
func (cm *ConnectionManager) SendMessage(connID string, data []byte) error {
	conn, ok := cm.GetConnection(connID)
	if !ok {
		return ErrUnknownConnection
	}
	if err := conn.enqueue(data); err != nil {
		if errors.Is(err, ErrSlowConsumer) {
			cm.drop(connID, err)
		}
		return err
	}
	logger.DebugF("[%s] Queued %d bytes", connID, len(data))
	return nil
}

// Broadcast 发送给房间内的所有连接 (包括发起者), 返回成功投递的数量
func (cm *ConnectionManager) Broadcast(room string, data []byte) int {
	cm.mu.RLock()
	members := make([]*Connection, 0, len(cm.rooms[room]))
	for _, conn := range cm.rooms[room] {
		members = append(members, conn)
	}
	cm.mu.RUnlock()

	delivered := 0
	var failed []string
	for _, conn := range members {
		if err := conn.enqueue(data); err != nil {
			failed = append(failed, conn.ConnID)
			continue
		}
		delivered++
	}
	for _, connID := range failed {
		cm.drop(connID, ErrSlowConsumer)
	}
	logger.DebugF("Broadcast %d bytes to room %s, delivered=%d dropped=%d", len(data), room, delivered, len(failed))
	return delivered
}
