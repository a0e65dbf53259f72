package session

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/life-stream-dev/life-stream-go-tabletop/internal/logger"
)

// Store 进程内唯一的会话表, 会话按 id 区分大小写
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	// recency 仅在限制会话数量时使用, 记录最近加入的顺序, 键与 sessions 一致
	recency     *lru.Cache[string, struct{}]
	maxSessions int
	capacity    int
	keep        func(id string) bool
}

// NewStore maxSessions > 0 时超出上限会淘汰最久未加入的空闲会话, 0 表示永不淘汰
func NewStore(maxSessions int) (*Store, error) {
	s := &Store{sessions: make(map[string]*Session), maxSessions: maxSessions}
	if maxSessions > 0 {
		cache, err := lru.New[string, struct{}](maxSessions)
		if err != nil {
			return nil, fmt.Errorf("create session recency cache: %w", err)
		}
		s.recency = cache
		s.capacity = maxSessions
	}
	return s, nil
}

// SetEvictionGuard 注册淘汰前的检查, keep 返回 true 的会话不会被淘汰.
// keep 在持有 Store 锁时调用, 不能再访问 Store.
func (s *Store) SetEvictionGuard(keep func(id string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keep = keep
}

// evictLocked 淘汰一个最久未加入的空闲会话, 调用时持有 s.mu
func (s *Store) evictLocked() bool {
	for _, id := range s.recency.Keys() {
		sess, ok := s.sessions[id]
		if !ok {
			s.recency.Remove(id)
			return true
		}
		if s.keep != nil && s.keep(id) {
			continue
		}
		// 正在被操作的会话 (例如加入流程中) 同样跳过
		if !sess.mu.TryLock() {
			continue
		}
		delete(s.sessions, id)
		s.recency.Remove(id)
		sess.detached = true
		sess.mu.Unlock()
		logger.InfoF("Session %s evicted, least recently joined", sess.ID())
		return true
	}
	return false
}

// GetOrCreate 返回会话, 未知 id 会创建空会话
func (s *Store) GetOrCreate(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		if s.recency != nil {
			for len(s.sessions) >= s.maxSessions && s.evictLocked() {
			}
			if len(s.sessions) >= s.maxSessions {
				logger.WarnF("Session limit %d exceeded, every session is in use", s.maxSessions)
			}
		}
		sess = newSession(id)
		s.sessions[id] = sess
		logger.DebugF("Session %s created", id)
	}
	if s.recency != nil {
		if !ok && s.recency.Len() >= s.capacity {
			// 所有会话都在使用时临时扩容, 避免缓存自行丢弃仍存在的会话
			s.capacity = s.recency.Len() + 1
			s.recency.Resize(s.capacity)
		}
		s.recency.Add(id, struct{}{})
	}
	return sess
}

func (s *Store) get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Update 在持有会话锁的情况下对已存在的会话执行 fn
func (s *Store) Update(id string, fn func(*Session) error) error {
	sess, ok := s.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.detached {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return fn(sess)
}

// UpdateOrCreate 先 GetOrCreate 再 Update; 拿到锁前会话被淘汰时重新创建
func (s *Store) UpdateOrCreate(id string, fn func(*Session) error) error {
	for {
		sess := s.GetOrCreate(id)
		sess.mu.Lock()
		if sess.detached {
			sess.mu.Unlock()
			continue
		}
		err := fn(sess)
		sess.mu.Unlock()
		return err
	}
}

func (s *Store) SetMap(id, assetRef string) error {
	return s.Update(id, func(sess *Session) error {
		sess.SetMap(assetRef)
		return nil
	})
}

func (s *Store) UpsertToken(id string, token Token) error {
	if err := token.Validate(); err != nil {
		return err
	}
	return s.Update(id, func(sess *Session) error {
		_, err := sess.UpsertToken(token)
		return err
	})
}

// RemoveToken 标记不存在时什么也不做
func (s *Store) RemoveToken(id, tokenID string) error {
	return s.Update(id, func(sess *Session) error {
		sess.RemoveToken(tokenID)
		return nil
	})
}

func (s *Store) SetInitiativeOrder(id string, order []string) error {
	return s.Update(id, func(sess *Session) error {
		sess.SetInitiativeOrder(order)
		return nil
	})
}

func (s *Store) Snapshot(id string) (Snapshot, error) {
	var snap Snapshot
	err := s.Update(id, func(sess *Session) error {
		snap = sess.Snapshot()
		return nil
	})
	return snap, err
}

// Peek 只读查询, 不会创建会话
func (s *Store) Peek(id string) (Snapshot, bool) {
	snap, err := s.Snapshot(id)
	if err != nil {
		return EmptySnapshot(), false
	}
	return snap, true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
