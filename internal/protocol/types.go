// Package protocol 定义了会话同步的线上消息格式
//
// 每个 websocket 文本帧承载一个 JSON 信封 {"event": "...", "data": ...}。
// 入站消息在解码时完成校验, 解码结果是封闭的几种消息类型之一。
package protocol

import (
	"encoding/json"

	"github.com/life-stream-dev/life-stream-go-tabletop/internal/session"
)

// EventType 消息事件名
type EventType string

const (
	EventJoin             EventType = "join"              // 客户端加入会话
	EventSessionInit      EventType = "session:init"      // 加入后的全量状态
	EventMapUpdate        EventType = "map:update"        // 背景地图变更
	EventTokenUpdate      EventType = "token:update"      // 标记新增或整体替换
	EventTokenRemove      EventType = "token:remove"      // 标记删除
	EventInitiativeUpdate EventType = "initiative:update" // 先攻顺序替换
	EventInitiativeNext   EventType = "initiative:next"   // 推进回合
	EventInitiativeTurn   EventType = "initiative:turn"   // 当前回合游标
)

// inboundEvents 客户端允许发送的事件
var inboundEvents = map[EventType]bool{
	EventJoin:             true,
	EventTokenUpdate:      true,
	EventTokenRemove:      true,
	EventInitiativeUpdate: true,
	EventInitiativeNext:   true,
}

func (e EventType) String() string {
	return string(e)
}

func (e EventType) Inbound() bool {
	return inboundEvents[e]
}

// Envelope 线上信封
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Inbound 是全部入站消息的封闭接口
type Inbound interface {
	Event() EventType
	Session() string
	inbound()
}

type Join struct {
	SessionID string
}

type TokenUpdate struct {
	SessionID string
	Token     session.Token
}

type TokenRemove struct {
	SessionID string
	ID        string
}

type InitiativeUpdate struct {
	SessionID string
	Order     []string
}

type InitiativeNext struct {
	SessionID string
}

func (Join) Event() EventType             { return EventJoin }
func (TokenUpdate) Event() EventType      { return EventTokenUpdate }
func (TokenRemove) Event() EventType      { return EventTokenRemove }
func (InitiativeUpdate) Event() EventType { return EventInitiativeUpdate }
func (InitiativeNext) Event() EventType   { return EventInitiativeNext }

func (m Join) Session() string             { return m.SessionID }
func (m TokenUpdate) Session() string      { return m.SessionID }
func (m TokenRemove) Session() string      { return m.SessionID }
func (m InitiativeUpdate) Session() string { return m.SessionID }
func (m InitiativeNext) Session() string   { return m.SessionID }

func (Join) inbound()             {}
func (TokenUpdate) inbound()      {}
func (TokenRemove) inbound()      {}
func (InitiativeUpdate) inbound() {}
func (InitiativeNext) inbound()   {}

// TurnPayload initiative:turn 的负载
type TurnPayload struct {
	Index   int    `json:"index"`
	TokenID string `json:"tokenId"`
}
