package connection

import (
	"sync"

	"github.com/life-stream-dev/life-stream-go-tabletop/internal/logger"
)

// ConnectionManager 连接管理器, 同时维护房间 (每个会话一个房间) 成员关系
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	rooms       map[string]map[string]*Connection
	membership  map[string]string
}

var (
	instance *ConnectionManager
	once     sync.Once
)

// GetConnectionManager 获取进程级连接管理器实例
func GetConnectionManager() *ConnectionManager {
	once.Do(func() {
		instance = NewConnectionManager()
	})
	return instance
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		rooms:       make(map[string]map[string]*Connection),
		membership:  make(map[string]string),
	}
}

// AddConnection 添加连接
func (cm *ConnectionManager) AddConnection(conn *Connection) {
	cm.mu.Lock()
	cm.connections[conn.ConnID] = conn
	cm.mu.Unlock()
	logger.InfoF("[%s] Client connected", conn.ConnID)
}

// RemoveConnection 移除连接并退出所在房间, 之前的修改不会回滚
func (cm *ConnectionManager) RemoveConnection(connID string) {
	cm.mu.Lock()
	conn, ok := cm.connections[connID]
	if ok {
		delete(cm.connections, connID)
		cm.leaveLocked(connID)
	}
	cm.mu.Unlock()
	if !ok {
		return
	}
	conn.Close()
	logger.InfoF("[%s] Client disconnected", connID)
}

// GetConnection 获取连接
func (cm *ConnectionManager) GetConnection(connID string) (*Connection, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	conn, ok := cm.connections[connID]
	return conn, ok
}

// JoinRoom 加入房间; 一个连接同一时刻只在一个房间内
func (cm *ConnectionManager) JoinRoom(connID, room string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	conn, ok := cm.connections[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if current, joined := cm.membership[connID]; joined {
		if current == room {
			return nil
		}
		cm.leaveLocked(connID)
	}
	members, ok := cm.rooms[room]
	if !ok {
		members = make(map[string]*Connection)
		cm.rooms[room] = members
	}
	members[connID] = conn
	cm.membership[connID] = room
	logger.DebugF("[%s] Joined room %s (%d members)", connID, room, len(members))
	return nil
}

func (cm *ConnectionManager) LeaveRoom(connID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.leaveLocked(connID)
}

func (cm *ConnectionManager) leaveLocked(connID string) {
	room, ok := cm.membership[connID]
	if !ok {
		return
	}
	delete(cm.membership, connID)
	if members, ok := cm.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(cm.rooms, room)
		}
	}
}

func (cm *ConnectionManager) RoomOf(connID string) (string, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	room, ok := cm.membership[connID]
	return room, ok
}

func (cm *ConnectionManager) RoomSize(room string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.rooms[room])
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// drop 断开发送失败的连接, 调用时不能持有 cm.mu
func (cm *ConnectionManager) drop(connID string, err error) {
	logger.WarnF("[%s] Dropping connection, details: %v", connID, err)
	cm.RemoveConnection(connID)
}

// CloseAll 关闭全部连接, 用于服务停止
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.connections = make(map[string]*Connection)
	cm.rooms = make(map[string]map[string]*Connection)
	cm.membership = make(map[string]string)
	cm.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	logger.InfoF("Closed %d client connections", len(conns))
}
