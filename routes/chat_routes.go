package routes

import (
	"context"
	"net/http"
	"time"

	handlers "ridechat/internal/handlers/shared"
	"ridechat/internal/metrics"
	"ridechat/internal/middleware"
	"ridechat/internal/utils"
	"ridechat/pkg/websocket"

	"github.com/gin-gonic/gin"
)

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// SetupChatRoutes sets up the chat room REST API. Without a JWT secret the
// routes are open, which is only meant for local development.
func SetupChatRoutes(r *gin.RouterGroup, chatHandler *handlers.ChatRoomHandler, jwtSecret string) {
	auth := func(c *gin.Context) { c.Next() }
	admin := auth
	if jwtSecret != "" {
		auth = middleware.AuthRequired(jwtSecret)
		admin = middleware.AdminRequired()
	}

	rooms := r.Group("/rooms")
	rooms.Use(auth)
	{
		rooms.POST("", chatHandler.CreateRoom)
		rooms.GET("/:ride_id", chatHandler.GetRoom)
		rooms.POST("/:ride_id/passengers", chatHandler.AddPassenger)
		rooms.DELETE("/:ride_id/passengers/:passenger_id", chatHandler.RemovePassenger)
		rooms.POST("/:ride_id/close", chatHandler.CloseRoom)
		rooms.GET("/:ride_id/messages", chatHandler.ListMessages)
		rooms.GET("/:ride_id/presence", chatHandler.GetPresence)
	}

	// Admin routes for the moderation pipeline
	moderation := r.Group("/admin/moderation")
	moderation.Use(auth, admin)
	{
		moderation.GET("/failed", chatHandler.ListFailedModerationJobs)
	}
}

// SetupRealtimeRoutes mounts the websocket endpoint plus health and metrics.
func SetupRealtimeRoutes(router *gin.Engine, path string, wsHandler *websocket.Handler, jwtSecret string, checks map[string]HealthChecker) {
	router.GET(path, middleware.OptionalAuth(jwtSecret), wsHandler.HandleWebSocket)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{}
		healthy := true
		for name, check := range checks {
			if err := check.Ping(ctx); err != nil {
				status[name] = "down"
				healthy = false
				continue
			}
			status[name] = "up"
		}

		if !healthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "checks": status})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "app": utils.AppName, "version": utils.AppVersion, "checks": status})
	})
}
