package websocket

import (
	"context"
	"encoding/json"
	"time"

	"ridechat/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type ClientConfig struct {
	MaxMessageSize int64
	SendBufferSize int
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Client is one WebSocket connection. UserID is the authenticated subject
// and is empty for anonymous connections.
type Client struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	groups map[string]struct{}
	cfg    ClientConfig
	logger *logger.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string, cfg ClientConfig) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Client{
		ID:          id,
		UserID:      userID,
		ConnectedAt: getCurrentTimestamp(),
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, cfg.SendBufferSize),
		groups:      make(map[string]struct{}),
		cfg:         cfg,
		logger:      hub.logger.WithConnectionID(id),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Context is cancelled when the connection's read loop ends.
func (c *Client) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// enqueue must be called with the hub lock held. It reports false when the
// send buffer is full.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.hub.release(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.WithError(err).Warn("WebSocket read error")
			}
			break
		}

		c.handleMessage(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
		c.hub.SendTo(c.ID, "error", map[string]interface{}{
			"message":   "Invalid message format",
			"timestamp": getCurrentTimestamp(),
		})
		return
	}

	if c.hub.handler != nil {
		c.hub.handler.HandleEvent(c, env.Event, env.Data)
	}
}
