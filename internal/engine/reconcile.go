package engine

import (
	"cmp"
	"slices"

	"github.com/life-stream-dev/life-stream-go-tabletop/internal/session"
)

// SortedOrder 按先攻值降序排列标记 id, 相同时保持插入顺序
func SortedOrder(tokens []session.Token) []string {
	sorted := slices.Clone(tokens)
	slices.SortStableFunc(sorted, func(a, b session.Token) int {
		return cmp.Compare(b.Initiative, a.Initiative)
	})
	order := make([]string, len(sorted))
	for i, t := range sorted {
		order[i] = t.ID
	}
	return order
}

// reconcileAfterUpsert 有标记不在顺序中时整体重建
func reconcileAfterUpsert(s *session.Session) ([]string, bool) {
	if len(s.MissingFromOrder()) == 0 {
		return nil, false
	}
	order := SortedOrder(s.Tokens())
	s.SetInitiativeOrder(order)
	return order, true
}

// reconcileAfterRemove 只移除 tokenID, 其余保持原样
func reconcileAfterRemove(s *session.Session, tokenID string) ([]string, bool) {
	current := s.InitiativeOrder()
	order := slices.DeleteFunc(slices.Clone(current), func(id string) bool {
		return id == tokenID
	})
	if len(order) == len(current) {
		return nil, false
	}
	s.SetInitiativeOrder(order)
	return order, true
}
