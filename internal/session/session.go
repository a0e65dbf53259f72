package session

import (
	"slices"
	"sync"
)

// Session 一个独立的桌面. 修改方法只能在 Store.Update 或
// Store.UpdateOrCreate 的回调中调用, 此时已持有 mu
type Session struct {
	mu       sync.Mutex
	id       string
	mapAsset string
	tokens   []Token
	order    []string
	turn     int
	// detached 被淘汰后置位, 之后的操作视为未知会话
	detached bool
}

func newSession(id string) *Session {
	return &Session{
		id:     id,
		tokens: make([]Token, 0),
		order:  make([]string, 0),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) MapAsset() string {
	return s.mapAsset
}

func (s *Session) SetMap(assetRef string) {
	s.mapAsset = assetRef
}

// UpsertToken 原地替换同 id 的标记, 否则追加; 返回是否为新标记
func (s *Session) UpsertToken(token Token) (bool, error) {
	if err := token.Validate(); err != nil {
		return false, err
	}
	if idx := s.indexOf(token.ID); idx >= 0 {
		s.tokens[idx] = token
		return false, nil
	}
	s.tokens = append(s.tokens, token)
	return true, nil
}

// RemoveToken 返回标记是否存在过
func (s *Session) RemoveToken(tokenID string) bool {
	idx := s.indexOf(tokenID)
	if idx < 0 {
		return false
	}
	s.tokens = slices.Delete(s.tokens, idx, idx+1)
	return true
}

// Tokens 按插入顺序返回拷贝
func (s *Session) Tokens() []Token {
	return slices.Clone(s.tokens)
}

func (s *Session) HasToken(tokenID string) bool {
	return s.indexOf(tokenID) >= 0
}

// SetInitiativeOrder 原样保存, 不检查 id 是否存在
func (s *Session) SetInitiativeOrder(order []string) {
	if order == nil {
		order = []string{}
	}
	s.order = slices.Clone(order)
	if s.turn >= len(s.order) {
		s.turn = 0
	}
}

func (s *Session) InitiativeOrder() []string {
	return slices.Clone(s.order)
}

// OrderConsistent 先攻顺序是否恰好包含每个标记一次
func (s *Session) OrderConsistent() bool {
	if len(s.order) != len(s.tokens) {
		return false
	}
	seen := make(map[string]struct{}, len(s.order))
	for _, id := range s.order {
		if _, dup := seen[id]; dup {
			return false
		}
		if !s.HasToken(id) {
			return false
		}
		seen[id] = struct{}{}
	}
	return true
}

// MissingFromOrder 不在先攻顺序中的标记 id
func (s *Session) MissingFromOrder() []string {
	inOrder := make(map[string]struct{}, len(s.order))
	for _, id := range s.order {
		inOrder[id] = struct{}{}
	}
	var missing []string
	for _, t := range s.tokens {
		if _, ok := inOrder[t.ID]; !ok {
			missing = append(missing, t.ID)
		}
	}
	return missing
}

// AdvanceTurn 回合游标前进一位, 到末尾后回到开头; 顺序为空时 ok 为 false
func (s *Session) AdvanceTurn() (index int, tokenID string, ok bool) {
	if len(s.order) == 0 {
		s.turn = 0
		return 0, "", false
	}
	s.turn = (s.turn + 1) % len(s.order)
	return s.turn, s.order[s.turn], true
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		MapAsset:        s.mapAsset,
		Tokens:          s.Tokens(),
		InitiativeOrder: s.InitiativeOrder(),
		Turn:            s.turn,
	}
}

func (s *Session) indexOf(tokenID string) int {
	return slices.IndexFunc(s.tokens, func(t Token) bool {
		return t.ID == tokenID
	})
}
