package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addConn(cm *ConnectionManager, id string, buffer int) *Connection {
	conn := NewConnection(id, buffer)
	cm.AddConnection(conn)
	return conn
}

func drain(conn *Connection) [][]byte {
	var out [][]byte
	for {
		select {
		case data := <-conn.Outbound():
			out = append(out, data)
		default:
			return out
		}
	}
}

func TestGetConnectionManagerSingleton(t *testing.T) {
	assert.Same(t, GetConnectionManager(), GetConnectionManager())
}

func TestNewConnIDUnique(t *testing.T) {
	a, b := NewConnID(), NewConnID()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}

func TestJoinRoomMovesConnection(t *testing.T) {
	cm := NewConnectionManager()
	addConn(cm, "c1", 4)

	require.NoError(t, cm.JoinRoom("c1", "alpha"))
	assert.Equal(t, 1, cm.RoomSize("alpha"))

	require.NoError(t, cm.JoinRoom("c1", "alpha"))
	assert.Equal(t, 1, cm.RoomSize("alpha"))

	require.NoError(t, cm.JoinRoom("c1", "beta"))
	assert.Equal(t, 0, cm.RoomSize("alpha"))
	assert.Equal(t, 1, cm.RoomSize("beta"))

	room, ok := cm.RoomOf("c1")
	require.True(t, ok)
	assert.Equal(t, "beta", room)

	assert.ErrorIs(t, cm.JoinRoom("ghost", "beta"), ErrUnknownConnection)
}

func TestBroadcastIsRoomScoped(t *testing.T) {
	cm := NewConnectionManager()
	a := addConn(cm, "a", 4)
	b := addConn(cm, "b", 4)
	c := addConn(cm, "c", 4)
	require.NoError(t, cm.JoinRoom("a", "demo"))
	require.NoError(t, cm.JoinRoom("b", "demo"))
	require.NoError(t, cm.JoinRoom("c", "other"))

	delivered := cm.Broadcast("demo", []byte("hello"))
	assert.Equal(t, 2, delivered)
	assert.Equal(t, [][]byte{[]byte("hello")}, drain(a))
	assert.Equal(t, [][]byte{[]byte("hello")}, drain(b))
	assert.Empty(t, drain(c))

	assert.Equal(t, 0, cm.Broadcast("empty", []byte("x")))
}

func TestSendMessage(t *testing.T) {
	cm := NewConnectionManager()
	a := addConn(cm, "a", 4)

	require.NoError(t, cm.SendMessage("a", []byte("init")))
	assert.Equal(t, [][]byte{[]byte("init")}, drain(a))
	assert.ErrorIs(t, cm.SendMessage("ghost", []byte("init")), ErrUnknownConnection)
}

func TestSlowConsumerIsDropped(t *testing.T) {
	cm := NewConnectionManager()
	slow := addConn(cm, "slow", 1)
	fast := addConn(cm, "fast", 8)
	require.NoError(t, cm.JoinRoom("slow", "demo"))
	require.NoError(t, cm.JoinRoom("fast", "demo"))

	assert.Equal(t, 2, cm.Broadcast("demo", []byte("1")))
	assert.Equal(t, 1, cm.Broadcast("demo", []byte("2")))

	assert.True(t, slow.Closed())
	_, ok := cm.GetConnection("slow")
	assert.False(t, ok)
	assert.Equal(t, 1, cm.RoomSize("demo"))
	assert.Len(t, drain(fast), 2)
}

func TestRemoveConnectionLeavesRoom(t *testing.T) {
	cm := NewConnectionManager()
	conn := addConn(cm, "a", 1)
	require.NoError(t, cm.JoinRoom("a", "demo"))

	cm.RemoveConnection("a")
	cm.RemoveConnection("a")

	assert.True(t, conn.Closed())
	assert.Equal(t, 0, cm.RoomSize("demo"))
	assert.Equal(t, 0, cm.Count())
	_, ok := cm.RoomOf("a")
	assert.False(t, ok)
	assert.ErrorIs(t, conn.enqueue([]byte("x")), ErrConnectionClosed)
}

func TestCloseAll(t *testing.T) {
	cm := NewConnectionManager()
	a := addConn(cm, "a", 1)
	b := addConn(cm, "b", 1)
	require.NoError(t, cm.JoinRoom("a", "s1"))

	cm.CloseAll()

	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
	assert.Equal(t, 0, cm.Count())
	assert.Equal(t, 0, cm.RoomSize("s1"))
	assert.Equal(t, 0, cm.Broadcast("s1", []byte("x")))
}
