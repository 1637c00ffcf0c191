package relay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil)
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func recvMessage(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return &msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message delivered: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func joinAndAck(t *testing.T, hub *Hub, c *Client, roomID string) {
	t.Helper()
	hub.Join(c, roomID)
	msg := recvMessage(t, c)
	assert.Equal(t, MsgTypeJoined, msg.Type)
	assert.Equal(t, roomID, msg.RoomID)
}

func TestJoinAcknowledgesAndCounts(t *testing.T) {
	hub := startHub(t)

	alice := NewClient(hub, nil, 1, "alice")
	bob := NewClient(hub, nil, 2, "bob")

	joinAndAck(t, hub, alice, "room-a")
	joinAndAck(t, hub, bob, "room-a")

	assert.Equal(t, 2, hub.RoomSize("room-a"))
	assert.Equal(t, 0, hub.RoomSize("room-b"))
}

func TestBroadcastExcludesSenderAndOtherRooms(t *testing.T) {
	hub := startHub(t)

	sender := NewClient(hub, nil, 1, "sender")
	peer := NewClient(hub, nil, 2, "peer")
	outsider := NewClient(hub, nil, 3, "outsider")

	joinAndAck(t, hub, sender, "room-a")
	joinAndAck(t, hub, peer, "room-a")
	joinAndAck(t, hub, outsider, "room-b")

	payload, _ := json.Marshal(AudioUpdateData{AudioURL: "http://x/clip.mp3", Creator: "sender"})
	err := hub.Broadcast("room-a", &Message{
		Type:     MsgTypeAudioUpdate,
		RoomID:   "room-a",
		UserID:   1,
		Username: "sender",
		Data:     payload,
	}, sender)
	require.NoError(t, err)

	got := recvMessage(t, peer)
	assert.Equal(t, MsgTypeAudioUpdate, got.Type)
	assert.Equal(t, int64(1), got.UserID)
	assert.NotZero(t, got.Timestamp)

	var data AudioUpdateData
	require.NoError(t, json.Unmarshal(got.Data, &data))
	assert.Equal(t, "http://x/clip.mp3", data.AudioURL)

	assertNoMessage(t, sender)
	assertNoMessage(t, outsider)
}

func TestBroadcastPreservesSubmissionOrder(t *testing.T) {
	hub := startHub(t)

	sender := NewClient(hub, nil, 1, "sender")
	receiver := NewClient(hub, nil, 2, "receiver")

	joinAndAck(t, hub, sender, "room-a")
	joinAndAck(t, hub, receiver, "room-a")

	for i := 0; i < 20; i++ {
		payload, _ := json.Marshal(map[string]int{"seq": i})
		require.NoError(t, hub.Broadcast("room-a", &Message{
			Type:   MsgTypeAudioUpdate,
			RoomID: "room-a",
			Data:   payload,
		}, sender))
	}

	for i := 0; i < 20; i++ {
		got := recvMessage(t, receiver)
		var data map[string]int
		require.NoError(t, json.Unmarshal(got.Data, &data))
		assert.Equal(t, i, data["seq"])
	}
}

func TestJoinMovesClientBetweenRooms(t *testing.T) {
	hub := startHub(t)

	mover := NewClient(hub, nil, 1, "mover")
	stayer := NewClient(hub, nil, 2, "stayer")

	joinAndAck(t, hub, mover, "room-a")
	joinAndAck(t, hub, stayer, "room-a")
	joinAndAck(t, hub, mover, "room-b")

	assert.Equal(t, 1, hub.RoomSize("room-a"))
	assert.Equal(t, 1, hub.RoomSize("room-b"))
	assert.Equal(t, "room-b", mover.Room())

	// Traffic in the old room no longer reaches the mover.
	require.NoError(t, hub.Broadcast("room-a", &Message{Type: MsgTypeAudioUpdate, RoomID: "room-a"}, stayer))
	assertNoMessage(t, mover)
}

func TestUnregisterLeavesRoomAndClosesSend(t *testing.T) {
	hub := startHub(t)

	leaver := NewClient(hub, nil, 1, "leaver")
	stayer := NewClient(hub, nil, 2, "stayer")

	joinAndAck(t, hub, leaver, "room-a")
	joinAndAck(t, hub, stayer, "room-a")

	hub.Unregister(leaver)

	select {
	case _, ok := <-leaver.Send:
		assert.False(t, ok, "send channel should be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("send channel was not closed")
	}

	assert.Equal(t, 1, hub.RoomSize("room-a"))
	assert.Equal(t, "", leaver.Room())

	// The room still works for the remaining subscriber.
	require.NoError(t, hub.Broadcast("room-a", &Message{Type: MsgTypeAudioUpdate, RoomID: "room-a"}, nil))
	got := recvMessage(t, stayer)
	assert.Equal(t, MsgTypeAudioUpdate, got.Type)
}

func TestSendDuringDisconnectDoesNotPanic(t *testing.T) {
	hub := startHub(t)

	// The read pump can queue a pong or an error reply at the same moment
	// the hub tears the client down. Racing the two must never panic.
	for i := 0; i < 25; i++ {
		c := NewClient(hub, nil, int64(i), "flaky")
		joinAndAck(t, hub, c, "room-a")

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 500; j++ {
				c.sendMessage(&Message{Type: MsgTypePong})
			}
		}()

		hub.Unregister(c)
		<-done
	}
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	hub := startHub(t)

	c := NewClient(hub, nil, 1, "gone")
	joinAndAck(t, hub, c, "room-a")
	hub.Unregister(c)

	// Wait for the hub to process the unregister.
	select {
	case _, ok := <-c.Send:
		require.False(t, ok, "send channel should be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("send channel was not closed")
	}

	c.sendMessage(&Message{Type: MsgTypePong})
	c.SendError("late error")
}

func TestBroadcastToEmptyRoomIsNoOp(t *testing.T) {
	hub := startHub(t)
	require.NoError(t, hub.Broadcast("ghost-room", &Message{Type: MsgTypeAudioUpdate}, nil))
}
