package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// pongWait must exceed pingInterval or healthy connections get reaped.
	pongWait       = 60 * time.Second
	pingInterval   = 50 * time.Second
	writeWait      = 10 * time.Second
	maxInboundSize = 512
	sendBuffer     = 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one dashboard connection. The server never acts on inbound
// frames; the read loop exists only to service pongs and detect closes.
type Client struct {
	hub    *Hub
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// ServeWS upgrades the request and blocks until the connection drops.
// The upgrader writes its own error response when the handshake fails.
func ServeWS(w http.ResponseWriter, r *http.Request, hub *Hub, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &Client{
		hub:    hub,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
	hub.Register(userID, client)
	go client.writeLoop()
	client.readLoop()
}

func (c *Client) close() {
	c.hub.Unregister(c.userID, c)
	_ = c.conn.Close()
}

func (c *Client) readLoop() {
	defer c.close()
	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		var payload []byte
		messageType := websocket.TextMessage
		select {
		case message, ok := <-c.send:
			if !ok {
				messageType = websocket.CloseMessage
			}
			payload = message
		case <-ticker.C:
			messageType = websocket.PingMessage
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(messageType, payload); err != nil {
			return
		}
		if messageType == websocket.CloseMessage {
			return
		}
	}
}
