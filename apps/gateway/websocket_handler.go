package main

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/driftroom/driftroom/pkg/auth"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Subscribers only send
	// control frames; posting goes through the API.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Rooms are shared by link across origins.
	},
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound events.
	send chan []byte

	// ID identifies this participant in the room's connected set.
	ID string

	// RoomID is the room this client is subscribed to.
	RoomID string
}

// readPump drains the connection. Subscribers are read-only from the
// server's perspective: inbound frames are discarded, the pump exists to
// notice disconnects and answer pings.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pumps events from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWs handles websocket subscription requests. The caller must present
// a credential for the room it wants to watch; a connection to a dead room
// is refused, matching the write-side gate.
func serveWs(hub *Hub, authority *auth.Authority, w http.ResponseWriter, r *http.Request) {
	cred := auth.FromRequest(r)
	if cred == "" {
		http.Error(w, "credential required", http.StatusUnauthorized)
		return
	}

	claims, err := authority.Validate(cred)
	if err != nil {
		http.Error(w, "invalid credential", http.StatusUnauthorized)
		return
	}

	if roomID := r.URL.Query().Get("roomId"); roomID != "" && roomID != claims.RoomID {
		http.Error(w, "credential is for a different room", http.StatusUnauthorized)
		return
	}

	exists, err := hub.store.RoomExists(r.Context(), claims.RoomID)
	if err != nil {
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "room does not exist", http.StatusNotFound)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		ID:     name,
		RoomID: claims.RoomID,
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}
