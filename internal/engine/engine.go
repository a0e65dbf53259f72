package engine

import (
	"errors"

	"github.com/life-stream-dev/life-stream-go-tabletop/internal/connection"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/logger"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/protocol"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/session"
)

type Options struct {
	// AllowUnjoinedMutations 接受未加入该会话的连接发来的修改
	AllowUnjoinedMutations bool
}

type Engine struct {
	store  *session.Store
	sender connection.MessageSender
	opts   Options
}

// New 同时向 store 注册淘汰检查: 房间内仍有连接的会话不会被淘汰
func New(store *session.Store, sender connection.MessageSender, opts Options) *Engine {
	store.SetEvictionGuard(func(sessionID string) bool {
		return sender.RoomSize(sessionID) > 0
	})
	return &Engine{store: store, sender: sender, opts: opts}
}

// Dispatch 按消息类型分发来自 connID 的入站消息
func (e *Engine) Dispatch(connID string, msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.Join:
		e.Join(connID, m.SessionID)
	case protocol.TokenUpdate:
		e.UpsertToken(connID, m.SessionID, m.Token)
	case protocol.TokenRemove:
		e.RemoveToken(connID, m.SessionID, m.ID)
	case protocol.InitiativeUpdate:
		e.SetInitiative(connID, m.SessionID, m.Order)
	case protocol.InitiativeNext:
		e.NextTurn(connID, m.SessionID)
	default:
		logger.WarnF("[%s] Unsupported message %T", connID, msg)
	}
}

// Join 把 connID 移入会话房间并单独发送全量状态, 会话不存在时创建
func (e *Engine) Join(connID, sessionID string) {
	_ = e.store.UpdateOrCreate(sessionID, func(s *session.Session) error {
		if err := e.sender.JoinRoom(connID, sessionID); err != nil {
			logger.WarnF("[%s] Fail to join session %s, details: %v", connID, sessionID, err)
			return err
		}
		frame, err := protocol.EncodeSessionInit(s.Snapshot())
		if err != nil {
			logger.ErrorF("[%s] %v", connID, err)
			return err
		}
		if err := e.sender.SendMessage(connID, frame); err != nil {
			logger.WarnF("[%s] Fail to send session snapshot, details: %v", connID, err)
			return err
		}
		logger.Info("Client joined session", "conn", connID, "session", sessionID)
		return nil
	})
}

// Leave 退出房间, 之前的修改保留
func (e *Engine) Leave(connID string) {
	if room, ok := e.sender.RoomOf(connID); ok {
		logger.Debug("Client left session", "conn", connID, "session", room)
	}
	e.sender.LeaveRoom(connID)
}

// UpdateMap 由上传网关调用, 记录新地图并通知整个房间, 必要时创建会话
func (e *Engine) UpdateMap(sessionID, assetRef string) {
	_ = e.store.UpdateOrCreate(sessionID, func(s *session.Session) error {
		s.SetMap(assetRef)
		e.broadcast(sessionID, protocol.EventMapUpdate, func() ([]byte, error) {
			return protocol.EncodeMapUpdate(assetRef)
		})
		return nil
	})
}

func (e *Engine) UpsertToken(connID, sessionID string, token session.Token) {
	if !e.admit(connID, sessionID, protocol.EventTokenUpdate) {
		return
	}
	e.apply(connID, sessionID, protocol.EventTokenUpdate, func(s *session.Session) error {
		if _, err := s.UpsertToken(token); err != nil {
			return err
		}
		e.broadcast(sessionID, protocol.EventTokenUpdate, func() ([]byte, error) {
			return protocol.EncodeTokenUpdate(token)
		})
		if order, changed := reconcileAfterUpsert(s); changed {
			e.broadcastOrder(sessionID, order)
		}
		return nil
	})
}

func (e *Engine) RemoveToken(connID, sessionID, tokenID string) {
	if !e.admit(connID, sessionID, protocol.EventTokenRemove) {
		return
	}
	e.apply(connID, sessionID, protocol.EventTokenRemove, func(s *session.Session) error {
		s.RemoveToken(tokenID)
		e.broadcast(sessionID, protocol.EventTokenRemove, func() ([]byte, error) {
			return protocol.EncodeTokenRemove(tokenID)
		})
		if order, changed := reconcileAfterRemove(s, tokenID); changed {
			e.broadcastOrder(sessionID, order)
		}
		return nil
	})
}

// SetInitiative 原样保存并广播客户端给出的顺序
func (e *Engine) SetInitiative(connID, sessionID string, order []string) {
	if !e.admit(connID, sessionID, protocol.EventInitiativeUpdate) {
		return
	}
	e.apply(connID, sessionID, protocol.EventInitiativeUpdate, func(s *session.Session) error {
		s.SetInitiativeOrder(order)
		if !s.OrderConsistent() {
			logger.Debug("Initiative order does not match tokens", "conn", connID, "session", sessionID)
		}
		e.broadcastOrder(sessionID, s.InitiativeOrder())
		return nil
	})
}

// NextTurn 推进回合游标并广播新位置
func (e *Engine) NextTurn(connID, sessionID string) {
	if !e.admit(connID, sessionID, protocol.EventInitiativeNext) {
		return
	}
	e.apply(connID, sessionID, protocol.EventInitiativeNext, func(s *session.Session) error {
		index, tokenID, ok := s.AdvanceTurn()
		if !ok {
			logger.Debug("Next turn ignored, initiative order is empty", "session", sessionID)
			return nil
		}
		e.broadcast(sessionID, protocol.EventInitiativeTurn, func() ([]byte, error) {
			return protocol.EncodeInitiativeTurn(index, tokenID)
		})
		return nil
	})
}

// Snapshot 只读, 不会创建会话
func (e *Engine) Snapshot(sessionID string) session.Snapshot {
	snap, _ := e.store.Peek(sessionID)
	return snap
}

func (e *Engine) admit(connID, sessionID string, event protocol.EventType) bool {
	if connID == "" || e.opts.AllowUnjoinedMutations {
		return true
	}
	if room, ok := e.sender.RoomOf(connID); ok && room == sessionID {
		return true
	}
	logger.WarnF("[%s] Drop %s for session %s, connection has not joined it", connID, event, sessionID)
	return false
}

func (e *Engine) apply(connID, sessionID string, event protocol.EventType, fn func(*session.Session) error) {
	err := e.store.Update(sessionID, fn)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrUnknownSession):
		logger.DebugF("[%s] Ignore %s for unknown session %s", connID, event, sessionID)
	case errors.Is(err, session.ErrValidation):
		logger.WarnF("[%s] Drop invalid %s for session %s, details: %v", connID, event, sessionID, err)
	default:
		logger.ErrorF("[%s] Fail to apply %s for session %s, details: %v", connID, event, sessionID, err)
	}
}

func (e *Engine) broadcast(sessionID string, event protocol.EventType, encode func() ([]byte, error)) {
	frame, err := encode()
	if err != nil {
		logger.ErrorF("Fail to encode %s for session %s, details: %v", event, sessionID, err)
		return
	}
	e.sender.Broadcast(sessionID, frame)
}

func (e *Engine) broadcastOrder(sessionID string, order []string) {
	e.broadcast(sessionID, protocol.EventInitiativeUpdate, func() ([]byte, error) {
		return protocol.EncodeInitiativeUpdate(order)
	})
}
