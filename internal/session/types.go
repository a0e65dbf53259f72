package session

import (
	"errors"
	"fmt"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrUnknownSession = errors.New("unknown session")
)

// Token 地图上可移动的标记
type Token struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Initiative float64 `json:"initiative"`
}

func (t Token) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: token id is required", ErrValidation)
	}
	return nil
}

// Snapshot 会话状态的完整拷贝, 用于加入时的全量同步
type Snapshot struct {
	MapAsset        string   `json:"mapAsset,omitempty"`
	Tokens          []Token  `json:"tokens"`
	InitiativeOrder []string `json:"initiativeOrder"`
	Turn            int      `json:"turn"`
}

// EmptySnapshot 是未知会话对外呈现的状态
func EmptySnapshot() Snapshot {
	return Snapshot{Tokens: []Token{}, InitiativeOrder: []string{}}
}
