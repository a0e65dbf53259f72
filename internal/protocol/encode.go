package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-tabletop/internal/session"
)

type outbound struct {
	Event EventType `json:"event"`
	Data  any       `json:"data"`
}

// Encode 将任意负载包装成信封
func Encode(event EventType, data any) ([]byte, error) {
	frame, err := json.Marshal(outbound{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return frame, nil
}

func EncodeSessionInit(snap session.Snapshot) ([]byte, error) {
	if snap.Tokens == nil {
		snap.Tokens = []session.Token{}
	}
	if snap.InitiativeOrder == nil {
		snap.InitiativeOrder = []string{}
	}
	return Encode(EventSessionInit, snap)
}

func EncodeMapUpdate(assetRef string) ([]byte, error) {
	return Encode(EventMapUpdate, assetRef)
}

func EncodeTokenUpdate(token session.Token) ([]byte, error) {
	return Encode(EventTokenUpdate, token)
}

func EncodeTokenRemove(tokenID string) ([]byte, error) {
	return Encode(EventTokenRemove, tokenID)
}

func EncodeInitiativeUpdate(order []string) ([]byte, error) {
	if order == nil {
		order = []string{}
	}
	return Encode(EventInitiativeUpdate, order)
}

func EncodeInitiativeTurn(index int, tokenID string) ([]byte, error) {
	return Encode(EventInitiativeTurn, TurnPayload{Index: index, TokenID: tokenID})
}

// Marshal 编码入站消息, 供客户端与测试使用
func Marshal(msg Inbound) ([]byte, error) {
	switch m := msg.(type) {
	case Join:
		return Encode(EventJoin, m.SessionID)
	case InitiativeNext:
		return Encode(EventInitiativeNext, m.SessionID)
	case TokenUpdate:
		return Encode(EventTokenUpdate, struct {
			SessionID string        `json:"sessionId"`
			Token     session.Token `json:"token"`
		}{m.SessionID, m.Token})
	case TokenRemove:
		return Encode(EventTokenRemove, struct {
			SessionID string `json:"sessionId"`
			ID        string `json:"id"`
		}{m.SessionID, m.ID})
	case InitiativeUpdate:
		order := m.Order
		if order == nil {
			order = []string{}
		}
		return Encode(EventInitiativeUpdate, struct {
			SessionID string   `json:"sessionId"`
			Order     []string `json:"order"`
		}{m.SessionID, order})
	}
	return nil, fmt.Errorf("unsupported inbound message %T", msg)
}
