package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shannn1/echolab-final/logger"

	"github.com/gorilla/websocket"
)

// Client is one WebSocket connection known to the hub.
type Client struct {
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte
	RoomID   string
	UserID   int64
	Username string

	mu     sync.RWMutex
	closed bool
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, userID int64, username string) *Client {
	return &Client{
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		UserID:   userID,
		Username: username,
	}
}

func (c *Client) setRoom(roomID string) {
	c.mu.Lock()
	c.RoomID = roomID
	c.mu.Unlock()
}

// Room returns the currently joined room id, empty if none.
func (c *Client) Room() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.RoomID
}

// ReadPump reads messages until the connection drops and dispatches them to
// handler. Ping messages are answered here; everything else goes to handler.
func (c *Client) ReadPump(ctx context.Context, handler func(ctx context.Context, client *Client, msg *Message)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096) // 4KB
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.Conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("websocket read error",
						logger.ErrorField(err),
						logger.Int64("user", c.UserID))
				}
				return
			}

			var msg Message
			if err := json.Unmarshal(message, &msg); err != nil {
				logger.Warn("invalid relay message",
					logger.ErrorField(err),
					logger.Int64("user", c.UserID))
				continue
			}

			if msg.Type == MsgTypePing {
				c.sendMessage(&Message{Type: MsgTypePong})
				continue
			}

			handler(ctx, c, &msg)
		}
	}
}

// WritePump drains the send channel onto the connection and keeps the
// connection alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Fold any queued messages into the same frame.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendMessage queues a message for this client, dropping it if the buffer
// is full or the hub has already closed the channel. The closed check and
// the send happen under the same read lock that closeSend writes under, so
// a concurrent disconnect cannot close the channel mid-send.
func (c *Client) sendMessage(msg *Message) {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	select {
	case c.Send <- data:
	default:
	}
}

// closeSend closes the send channel exactly once. Only the hub goroutine
// calls this.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// SendError reports a protocol error back to this client only.
func (c *Client) SendError(detail string) {
	data, _ := json.Marshal(map[string]string{"message": detail})
	c.sendMessage(&Message{Type: MsgTypeError, Data: data})
}
