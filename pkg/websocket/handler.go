package websocket

import (
	"net/http"
	"strings"

	"ridechat/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type Handler struct {
	hub         *Hub
	upgrader    websocket.Upgrader
	clientCfg   ClientConfig
	requireAuth bool
}

func NewHandler(hub *Hub, cfg *config.WebSocketConfig, requireAuth bool) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
		},
		clientCfg: ClientConfig{
			MaxMessageSize: cfg.MaxMessageSize,
			SendBufferSize: cfg.SendBufferSize,
			PingInterval:   cfg.PingInterval,
			PongTimeout:    cfg.PongTimeout,
			WriteTimeout:   cfg.WriteTimeout,
		},
		requireAuth: requireAuth,
	}
}

// HandleWebSocket upgrades the request. The authenticated user id, if any, is
// read from the gin context where the auth middleware placed it.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID := c.GetString("user_id")
	if h.requireAuth && userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, userID, h.clientCfg)
	h.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}
