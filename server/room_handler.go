package server

import (
	"context"
	"net/http"
	"time"

	"github.com/shannn1/echolab-final/core/relay"
	"github.com/shannn1/echolab-final/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// CreateRoomHandler mints a fresh room ID. Rooms have no persistent record;
// a room exists as long as someone is subscribed to it.
func (h *APIHandler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID, err := shortid.Generate()
	if err != nil {
		logger.Error("[CreateRoom] id generation failed", logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Server error")
		return
	}

	userID, _ := GetUserIDFromContext(r.Context())
	logger.Info("[CreateRoom] room created",
		logger.String("roomId", roomID),
		logger.Int64("userId", userID))

	writeJSON(w, http.StatusOK, map[string]string{"roomId": roomID})
}

// RoomInfoHandler reports a room's current online count. Any room ID is
// valid to ask about; an empty room simply reports zero.
func (h *APIHandler) RoomInfoHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	online := int64(h.hub.RoomSize(roomID))
	if h.presence != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if count, err := h.presence.OnlineCount(ctx, roomID); err == nil {
			online = count
		} else {
			logger.Warn("[RoomInfo] presence lookup failed",
				logger.String("roomId", roomID),
				logger.ErrorField(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"roomId": roomID,
		"online": online,
	})
}

// RoomWebSocketHandler upgrades the connection and attaches the caller to
// the relay hub. The token rides a query parameter because browser WebSocket
// clients cannot set an Authorization header.
func (h *APIHandler) RoomWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeMessage(w, http.StatusUnauthorized, "Missing token")
		return
	}
	claims, err := h.issuer.ParseToken(token)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("[RoomWS] upgrade failed", logger.ErrorField(err))
		return
	}

	client := relay.NewClient(h.hub, conn, claims.UserID, claims.Username)
	h.hub.Register(client)

	logger.Info("[RoomWS] client connected",
		logger.Int64("userId", claims.UserID),
		logger.String("username", claims.Username))

	// The request context dies when this handler returns; the pumps outlive
	// it on the hijacked connection, bounded by their own deadlines.
	go client.WritePump()
	go client.ReadPump(context.Background(), h.handleRoomMessage)
}

// handleRoomMessage dispatches one inbound relay message. Ping/pong is
// already answered by the read pump.
func (h *APIHandler) handleRoomMessage(ctx context.Context, client *relay.Client, msg *relay.Message) {
	switch msg.Type {
	case relay.MsgTypeJoin:
		if msg.RoomID == "" {
			client.SendError("roomId is required")
			return
		}
		h.hub.Join(client, msg.RoomID)
	case relay.MsgTypeAudioUpdate:
		roomID := client.Room()
		if roomID == "" {
			client.SendError("join a room before broadcasting")
			return
		}
		out := &relay.Message{
			Type:      relay.MsgTypeAudioUpdate,
			RoomID:    roomID,
			UserID:    client.UserID,
			Username:  client.Username,
			Data:      msg.Data,
			Timestamp: time.Now().UnixMilli(),
		}
		if err := h.hub.Broadcast(roomID, out, client); err != nil {
			logger.Warn("[RoomWS] broadcast failed",
				logger.String("roomId", roomID),
				logger.ErrorField(err))
			client.SendError("broadcast failed")
		}
	default:
		client.SendError("unknown message type")
	}
}
