package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, max int) *Store {
	t.Helper()
	store, err := NewStore(max)
	require.NoError(t, err)
	return store
}

func TestGetOrCreateEmpty(t *testing.T) {
	store := newTestStore(t, 0)

	sess := store.GetOrCreate("demo")
	require.NotNil(t, sess)
	assert.Same(t, sess, store.GetOrCreate("demo"))

	snap, err := store.Snapshot("demo")
	require.NoError(t, err)
	assert.Equal(t, EmptySnapshot(), snap)
	assert.Equal(t, 1, store.Len())
}

func TestSessionIDsAreCaseSensitive(t *testing.T) {
	store := newTestStore(t, 0)
	store.GetOrCreate("Demo")
	store.GetOrCreate("demo")
	assert.Equal(t, 2, store.Len())
}

func TestMutationsOnUnknownSession(t *testing.T) {
	store := newTestStore(t, 0)

	assert.ErrorIs(t, store.SetMap("nope", "/uploads/a.png"), ErrUnknownSession)
	assert.ErrorIs(t, store.UpsertToken("nope", Token{ID: "t1"}), ErrUnknownSession)
	assert.ErrorIs(t, store.RemoveToken("nope", "t1"), ErrUnknownSession)
	assert.ErrorIs(t, store.SetInitiativeOrder("nope", []string{"t1"}), ErrUnknownSession)
	_, err := store.Snapshot("nope")
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.Equal(t, 0, store.Len())
}

func TestUpsertTokenRequiresID(t *testing.T) {
	store := newTestStore(t, 0)
	store.GetOrCreate("demo")

	err := store.UpsertToken("demo", Token{Name: "nameless"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpsertTokenLastWriteWins(t *testing.T) {
	store := newTestStore(t, 0)
	store.GetOrCreate("demo")

	a := Token{ID: "t1", Name: "Goblin", X: 10, Y: 10, Initiative: 3}
	b := Token{ID: "t1", Name: "Goblin King", X: -40, Y: 9000}
	require.NoError(t, store.UpsertToken("demo", a))
	require.NoError(t, store.UpsertToken("demo", b))

	snap, err := store.Snapshot("demo")
	require.NoError(t, err)
	require.Len(t, snap.Tokens, 1)
	// 整体替换, 不合并 a 的 initiative
	assert.Equal(t, b, snap.Tokens[0])
}

func TestRemoveTokenIdempotent(t *testing.T) {
	store := newTestStore(t, 0)
	store.GetOrCreate("demo")
	require.NoError(t, store.UpsertToken("demo", Token{ID: "t1"}))

	require.NoError(t, store.RemoveToken("demo", "missing"))
	snap, _ := store.Snapshot("demo")
	assert.Len(t, snap.Tokens, 1)

	require.NoError(t, store.RemoveToken("demo", "t1"))
	require.NoError(t, store.RemoveToken("demo", "t1"))
	snap, _ = store.Snapshot("demo")
	assert.Empty(t, snap.Tokens)
}

func TestSetInitiativeOrderVerbatim(t *testing.T) {
	store := newTestStore(t, 0)
	store.GetOrCreate("demo")
	require.NoError(t, store.UpsertToken("demo", Token{ID: "t1"}))

	order := []string{"ghost", "t1", "t1"}
	require.NoError(t, store.SetInitiativeOrder("demo", order))
	order[0] = "mutated"

	snap, _ := store.Snapshot("demo")
	assert.Equal(t, []string{"ghost", "t1", "t1"}, snap.InitiativeOrder)

	require.NoError(t, store.SetInitiativeOrder("demo", nil))
	snap, _ = store.Snapshot("demo")
	assert.Equal(t, []string{}, snap.InitiativeOrder)
}

func TestSnapshotAccumulatesState(t *testing.T) {
	store := newTestStore(t, 0)
	store.GetOrCreate("demo")

	require.NoError(t, store.SetMap("demo", "/uploads/one.png"))
	require.NoError(t, store.UpsertToken("demo", Token{ID: "t1", Name: "Goblin"}))
	require.NoError(t, store.UpsertToken("demo", Token{ID: "t2", Name: "Hero", Initiative: 5}))
	require.NoError(t, store.SetMap("demo", "/uploads/two.png"))
	require.NoError(t, store.SetInitiativeOrder("demo", []string{"t2", "t1"}))
	require.NoError(t, store.RemoveToken("demo", "t1"))

	snap, err := store.Snapshot("demo")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/two.png", snap.MapAsset)
	assert.Equal(t, []Token{{ID: "t2", Name: "Hero", Initiative: 5}}, snap.Tokens)
	assert.Equal(t, []string{"t2", "t1"}, snap.InitiativeOrder)

	// 快照是拷贝
	snap.Tokens[0].Name = "changed"
	again, _ := store.Snapshot("demo")
	assert.Equal(t, "Hero", again.Tokens[0].Name)
}

func TestPeekDoesNotCreate(t *testing.T) {
	store := newTestStore(t, 0)

	snap, ok := store.Peek("ghost")
	assert.False(t, ok)
	assert.Equal(t, EmptySnapshot(), snap)
	assert.Equal(t, 0, store.Len())
}

func TestEvictLeastRecentlyJoined(t *testing.T) {
	store := newTestStore(t, 2)

	store.GetOrCreate("a")
	store.GetOrCreate("b")
	store.GetOrCreate("a")
	store.GetOrCreate("c")

	assert.Equal(t, 2, store.Len())
	_, ok := store.Peek("b")
	assert.False(t, ok, "b was joined least recently")
	_, ok = store.Peek("a")
	assert.True(t, ok)
	_, ok = store.Peek("c")
	assert.True(t, ok)
}

func TestEvictionGuardKeepsSessionsInUse(t *testing.T) {
	store := newTestStore(t, 1)
	inUse := map[string]bool{"a": true}
	store.SetEvictionGuard(func(id string) bool {
		return inUse[id]
	})

	store.GetOrCreate("a")
	require.NoError(t, store.UpsertToken("a", Token{ID: "t1"}))
	store.GetOrCreate("b")

	assert.Equal(t, 2, store.Len())
	snap, ok := store.Peek("a")
	require.True(t, ok)
	assert.Len(t, snap.Tokens, 1)

	// a 空闲后按加入顺序淘汰, 超出的部分一次收回
	inUse["a"] = false
	store.GetOrCreate("c")
	assert.Equal(t, 1, store.Len())
	_, ok = store.Peek("a")
	assert.False(t, ok)
	_, ok = store.Peek("b")
	assert.False(t, ok)
	_, ok = store.Peek("c")
	assert.True(t, ok)
}

func TestEvictionSkipsLockedSession(t *testing.T) {
	store := newTestStore(t, 1)
	sess := store.GetOrCreate("a")

	sess.mu.Lock()
	store.GetOrCreate("b")
	sess.mu.Unlock()

	assert.Equal(t, 2, store.Len())
	_, ok := store.Peek("a")
	assert.True(t, ok)
}

func TestDetachedSessionIsUnknown(t *testing.T) {
	store := newTestStore(t, 1)
	old := store.GetOrCreate("a")
	store.GetOrCreate("b")

	old.mu.Lock()
	assert.True(t, old.detached)
	old.mu.Unlock()
	assert.ErrorIs(t, store.SetMap("a", "/uploads/x.png"), ErrUnknownSession)

	require.NoError(t, store.UpdateOrCreate("a", func(s *Session) error {
		assert.NotSame(t, old, s)
		s.SetMap("/uploads/y.png")
		return nil
	}))
	snap, ok := store.Peek("a")
	require.True(t, ok)
	assert.Equal(t, "/uploads/y.png", snap.MapAsset)
}

func TestConcurrentUpserts(t *testing.T) {
	store := newTestStore(t, 0)
	store.GetOrCreate("demo")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.UpsertToken("demo", Token{ID: fmt.Sprintf("t%d", i%10), X: float64(i)})
		}(i)
	}
	wg.Wait()

	snap, _ := store.Snapshot("demo")
	assert.Len(t, snap.Tokens, 10)
}
