package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-tabletop/internal/session"
)

type wireToken struct {
	ID         *string  `json:"id"`
	Name       *string  `json:"name"`
	X          *float64 `json:"x"`
	Y          *float64 `json:"y"`
	Initiative *float64 `json:"initiative"`
}

type wireTokenUpdate struct {
	SessionID *string    `json:"sessionId"`
	Token     *wireToken `json:"token"`
}

type wireTokenRemove struct {
	SessionID *string `json:"sessionId"`
	ID        *string `json:"id"`
}

type wireInitiativeUpdate struct {
	SessionID *string   `json:"sessionId"`
	Order     *[]string `json:"order"`
}

func isNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func requireSessionID(event EventType, id *string) (string, error) {
	if id == nil {
		return "", invalid(event, "sessionId", "is required")
	}
	if *id == "" {
		return "", invalid(event, "sessionId", "must not be empty")
	}
	return *id, nil
}

func decodeSessionID(event EventType, data json.RawMessage) (string, error) {
	if isNull(data) {
		return "", invalid(event, "sessionId", "is required")
	}
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return "", invalid(event, "sessionId", "must be a string")
	}
	return requireSessionID(event, &id)
}

func (w *wireToken) toToken(event EventType) (session.Token, error) {
	if w == nil {
		return session.Token{}, invalid(event, "token", "is required")
	}
	if w.ID == nil || *w.ID == "" {
		return session.Token{}, invalid(event, "token.id", "is required")
	}
	if w.X == nil {
		return session.Token{}, invalid(event, "token.x", "is required")
	}
	if w.Y == nil {
		return session.Token{}, invalid(event, "token.y", "is required")
	}
	token := session.Token{ID: *w.ID, X: *w.X, Y: *w.Y}
	if w.Name != nil {
		token.Name = *w.Name
	}
	if w.Initiative != nil {
		token.Initiative = *w.Initiative
	}
	return token, nil
}

// Decode 解析一个入站帧, 任何字段缺失或类型不符都返回 *ValidationError
func Decode(frame []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("malformed envelope: %v", err)}
	}
	if env.Event == "" {
		return nil, invalid("", "event", "is required")
	}
	if !env.Event.Inbound() {
		return nil, invalid(env.Event, "event", "is not accepted from clients")
	}

	switch env.Event {
	case EventJoin:
		id, err := decodeSessionID(env.Event, env.Data)
		if err != nil {
			return nil, err
		}
		return Join{SessionID: id}, nil

	case EventInitiativeNext:
		id, err := decodeSessionID(env.Event, env.Data)
		if err != nil {
			return nil, err
		}
		return InitiativeNext{SessionID: id}, nil

	case EventTokenUpdate:
		var w wireTokenUpdate
		if err := decodeObject(env, &w); err != nil {
			return nil, err
		}
		id, err := requireSessionID(env.Event, w.SessionID)
		if err != nil {
			return nil, err
		}
		token, err := w.Token.toToken(env.Event)
		if err != nil {
			return nil, err
		}
		return TokenUpdate{SessionID: id, Token: token}, nil

	case EventTokenRemove:
		var w wireTokenRemove
		if err := decodeObject(env, &w); err != nil {
			return nil, err
		}
		id, err := requireSessionID(env.Event, w.SessionID)
		if err != nil {
			return nil, err
		}
		if w.ID == nil || *w.ID == "" {
			return nil, invalid(env.Event, "id", "is required")
		}
		return TokenRemove{SessionID: id, ID: *w.ID}, nil

	case EventInitiativeUpdate:
		var w wireInitiativeUpdate
		if err := decodeObject(env, &w); err != nil {
			return nil, err
		}
		id, err := requireSessionID(env.Event, w.SessionID)
		if err != nil {
			return nil, err
		}
		if w.Order == nil {
			return nil, invalid(env.Event, "order", "is required")
		}
		order := *w.Order
		if order == nil {
			order = []string{}
		}
		return InitiativeUpdate{SessionID: id, Order: order}, nil
	}

	return nil, invalid(env.Event, "event", "is not supported")
}

func decodeObject(env Envelope, out any) error {
	if isNull(env.Data) {
		return invalid(env.Event, "data", "is required")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return invalid(env.Event, "data", fmt.Sprintf("is malformed: %v", err))
	}
	return nil
}
