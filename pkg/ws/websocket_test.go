package ws

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewHub(&HubOptions{Logger: logger})
}

func TestHub_ChannelMembership(t *testing.T) {
	t.Parallel()

	hub := newTestHub()
	a := newConnection(nil)
	b := newConnection(nil)

	hub.JoinChannel("tenant/1", a)
	hub.JoinChannel("tenant/1", b)
	hub.JoinChannel("agent/1", a)

	assert.Len(t, hub.ConnectionsInChannel("tenant/1"), 2)
	assert.Len(t, hub.ConnectionsInChannel("agent/1"), 1)
	assert.Empty(t, hub.ConnectionsInChannel("tenant/2"))

	hub.LeaveChannel("tenant/1", a)
	assert.Len(t, hub.ConnectionsInChannel("tenant/1"), 1)
}

func TestHub_BroadcastReachesChannelOnly(t *testing.T) {
	t.Parallel()

	hub := newTestHub()
	member := newConnection(nil)
	outsider := newConnection(nil)
	hub.JoinChannel("tenant/1", member)
	hub.JoinChannel("tenant/2", outsider)

	hub.BroadcastToChannel("tenant/1", []byte("hello"))

	select {
	case msg := <-member.send:
		assert.Equal(t, "hello", string(msg))
	default:
		t.Fatal("expected a queued message for channel member")
	}
	select {
	case <-outsider.send:
		t.Fatal("outsider must not receive the broadcast")
	default:
	}
}

func TestConnection_SendAfterCloseFails(t *testing.T) {
	t.Parallel()

	conn := newConnection(nil)
	close(conn.done)

	err := conn.SendMessage([]byte("late"))
	require.Error(t, err)
}

func TestHub_RemoveDropsAllChannels(t *testing.T) {
	t.Parallel()

	hub := newTestHub()
	conn := newConnection(nil)
	hub.conns[conn] = struct{}{}
	hub.JoinChannel("tenant/1", conn)
	hub.JoinChannel("agent/1", conn)

	hub.remove(conn)

	assert.Empty(t, hub.ConnectionsInChannel("tenant/1"))
	assert.Empty(t, hub.ConnectionsInChannel("agent/1"))
	assert.Empty(t, hub.ConnectionsAll())
}
