package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds what a dashboard may send us
	maxMessageSize = 4 * 1024
)

// Client is a single dashboard websocket connection
type Client struct {
	ID string

	hub    *Hub
	conn   *websocket.Conn
	send   chan Message
	binary bool // wants CBOR frames instead of JSON

	// Closed when the read pump exits; stops the write pump
	quit chan struct{}
}

// NewClient creates a client and registers it with the hub. Clients that
// set binary receive BinaryMessage frames only; others receive JSONMessage
// frames only.
func NewClient(hub *Hub, conn *websocket.Conn, binary bool) *Client {
	client := &Client{
		ID:     uuid.NewString(),
		hub:    hub,
		conn:   conn,
		send:   make(chan Message, 256), // Buffered channel for backpressure
		binary: binary,
		quit:   make(chan struct{}),
	}
	hub.join(client)
	return client
}

// Run starts the client's read and write pumps and blocks until both have
// exited. Call it from the websocket handler: the connection must not be
// touched after the handler returns.
func (c *Client) Run() {
	written := make(chan struct{})
	go func() {
		defer close(written)
		c.writePump()
	}()
	c.readPump()
	<-written
}

func (c *Client) wants(msg Message) bool {
	return (msg.Type == BinaryMessage) == c.binary
}

// readPump keeps reading so that disconnects and pongs are noticed
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		close(c.quit)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump is the only goroutine that writes to or closes the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			wsType := websocket.TextMessage
			if message.Type == BinaryMessage {
				wsType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(wsType, message.Data); err != nil {
				return
			}

		case <-c.quit:
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
