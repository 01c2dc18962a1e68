package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(hub *Hub, userID, role string, buffer int) *Client {
	return &Client{
		Hub:      hub,
		Send:     make(chan []byte, buffer),
		UserID:   userID,
		Role:     role,
		requests: make(map[string]bool),
	}
}

func register(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.clients[c]
	}, time.Second, time.Millisecond)
}

func TestSendToUserAndRole(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	alice := newTestClient(hub, "u-alice", "manager", 8)
	aliceOther := newTestClient(hub, "u-alice", "manager", 8) // second tab
	bob := newTestClient(hub, "u-bob", "requester", 8)
	register(t, hub, alice)
	register(t, hub, aliceOther)
	register(t, hub, bob)

	hub.SendToUser("u-alice", []byte("direct"))
	assert.Len(t, alice.Send, 1)
	assert.Len(t, aliceOther.Send, 1)
	assert.Empty(t, bob.Send)

	hub.SendToRole("requester", []byte("role-wide"))
	assert.Len(t, bob.Send, 1)
	assert.Len(t, alice.Send, 1)

	hub.BroadcastAll([]byte("everyone"))
	assert.Len(t, alice.Send, 2)
	assert.Len(t, bob.Send, 2)
}

func TestRequestRoomSubscriptions(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	watcher := newTestClient(hub, "u-watcher", "operator", 8)
	outsider := newTestClient(hub, "u-outsider", "operator", 8)
	register(t, hub, watcher)
	register(t, hub, outsider)

	watcher.setSubscription("req-1", true)

	hub.SendToRequest("req-1", []byte("update"))
	assert.Len(t, watcher.Send, 1)
	assert.Empty(t, outsider.Send)

	watcher.setSubscription("req-1", false)
	hub.SendToRequest("req-1", []byte("update-2"))
	assert.Len(t, watcher.Send, 1)
}

func TestSlowConsumerIsDropped(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	slow := newTestClient(hub, "u-slow", "requester", 1)
	register(t, hub, slow)

	hub.SendToUser("u-slow", []byte("one"))
	// Buffer full: this delivery drops the connection instead of blocking.
	hub.SendToUser("u-slow", []byte("two"))

	assert.Zero(t, hub.ClientCount())

	// The channel was closed as part of the drop.
	<-slow.Send
	_, open := <-slow.Send
	assert.False(t, open)
}

func TestUnregisterRemovesClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c := newTestClient(hub, "u-1", "admin", 8)
	register(t, hub, c)
	require.Equal(t, 1, hub.ClientCount())

	hub.unregister <- c
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, time.Millisecond)

	_, open := <-c.Send
	assert.False(t, open)
}
