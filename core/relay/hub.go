package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shannn1/echolab-final/logger"
)

// MessageType identifies a relay message.
type MessageType string

const (
	MsgTypeJoin        MessageType = "joinRoom"    // client -> server: subscribe to a room
	MsgTypeJoined      MessageType = "joined"      // server -> client: join acknowledged
	MsgTypeAudioUpdate MessageType = "audioUpdate" // fan-out: a participant saved a clip
	MsgTypeError       MessageType = "error"
	MsgTypePing        MessageType = "ping"
	MsgTypePong        MessageType = "pong"
)

// Message is the wire format for relay traffic.
type Message struct {
	Type      MessageType     `json:"type"`
	RoomID    string          `json:"roomId,omitempty"`
	UserID    int64           `json:"userId,omitempty"`
	Username  string          `json:"username,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// AudioUpdateData is the payload broadcast when a participant saves a clip
// to the room.
type AudioUpdateData struct {
	AudioURL    string `json:"audioUrl"`
	Description string `json:"description,omitempty"`
	Creator     string `json:"creator,omitempty"`
}

// Presence mirrors subscriber membership into an external store so REST
// endpoints can report online counts. May be nil.
type Presence interface {
	Touch(ctx context.Context, roomID string, userID int64) error
	Remove(ctx context.Context, roomID string, userID int64) error
}

// broadcastRequest is one fan-out to a room. exclude skips the sender:
// the sending client already rendered its own save locally, so broadcasts
// are never delivered back to their origin.
type broadcastRequest struct {
	roomID  string
	message []byte
	exclude *Client
}

// joinRequest moves a client into a room.
type joinRequest struct {
	client *Client
	roomID string
}

// Hub is the room relay: a process-lifetime mapping from room identifier to
// the set of currently connected clients. Room state does not survive a
// restart; rooms exist only while someone is subscribed.
//
// All membership changes and broadcasts are serialized through the run loop,
// so delivery order within one room matches broadcast submission order.
type Hub struct {
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	join       chan joinRequest
	broadcast  chan broadcastRequest

	presence Presence

	mu   sync.RWMutex
	done chan struct{}
}

// NewHub creates a relay hub. presence may be nil.
func NewHub(presence Presence) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan joinRequest),
		broadcast:  make(chan broadcastRequest, 256),
		presence:   presence,
		done:       make(chan struct{}),
	}
}

// Run drives the hub loop until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			// Connection established; no room yet.
			logger.Debug("relay client connected", logger.Int64("user", client.UserID))

		case req := <-h.join:
			h.joinRoom(req.client, req.roomID)

		case client := <-h.unregister:
			h.removeClient(client)

		case req := <-h.broadcast:
			h.broadcastToRoom(req)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop shuts the hub down and closes all client send channels.
func (h *Hub) Stop() {
	close(h.done)
}

// Register announces a new connection to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a connection from whatever room it joined.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Join subscribes a client to a room. A client is in at most one room;
// joining again moves it.
func (h *Hub) Join(client *Client, roomID string) {
	h.join <- joinRequest{client: client, roomID: roomID}
}

// Broadcast fans a message out to every subscriber of the room except the
// sender. Pass a nil sender to deliver to everyone.
func (h *Hub) Broadcast(roomID string, msg *Message, sender *Client) error {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.broadcast <- broadcastRequest{roomID: roomID, message: data, exclude: sender}
	return nil
}

// RoomSize reports the current subscriber count of a room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) joinRoom(client *Client, roomID string) {
	h.mu.Lock()

	// Leaving the previous room, if any.
	if prev := client.RoomID; prev != "" && prev != roomID {
		h.detachLocked(client, prev)
	}

	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	client.setRoom(roomID)
	h.mu.Unlock()

	if h.presence != nil {
		if err := h.presence.Touch(context.Background(), roomID, client.UserID); err != nil {
			logger.Warn("failed to update presence on join",
				logger.ErrorField(err),
				logger.String("room", roomID),
				logger.Int64("user", client.UserID))
		}
	}

	client.sendMessage(&Message{Type: MsgTypeJoined, RoomID: roomID})

	logger.Info("client joined room",
		logger.String("room", roomID),
		logger.Int64("user", client.UserID),
		logger.String("username", client.Username))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	roomID := client.RoomID
	if roomID != "" {
		h.detachLocked(client, roomID)
	}
	h.mu.Unlock()

	client.closeSend()

	if roomID != "" && h.presence != nil {
		if err := h.presence.Remove(context.Background(), roomID, client.UserID); err != nil {
			logger.Warn("failed to remove presence on disconnect",
				logger.ErrorField(err),
				logger.String("room", roomID),
				logger.Int64("user", client.UserID))
		}
	}

	logger.Info("relay client disconnected",
		logger.String("room", roomID),
		logger.Int64("user", client.UserID))
}

// detachLocked removes a client from a room's subscriber set. Caller holds mu.
func (h *Hub) detachLocked(client *Client, roomID string) {
	if clients, ok := h.rooms[roomID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, roomID)
		}
	}
	client.setRoom("")
}

func (h *Hub) broadcastToRoom(req broadcastRequest) {
	h.mu.RLock()
	clients, ok := h.rooms[req.roomID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	clientList := make([]*Client, 0, len(clients))
	for client := range clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	for _, client := range clientList {
		if client == req.exclude {
			continue
		}
		select {
		case client.Send <- req.message:
		default:
			// Send buffer full: the connection is not draining, drop it.
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.rooms {
		for client := range clients {
			client.closeSend()
		}
	}
	h.rooms = make(map[string]map[*Client]bool)
}
