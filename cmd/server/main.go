package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ridechat/internal/config"
	handlers "ridechat/internal/handlers/shared"
	"ridechat/internal/middleware"
	"ridechat/internal/repositories/mongodb"
	"ridechat/internal/services"
	"ridechat/pkg/alert"
	"ridechat/pkg/cache"
	"ridechat/pkg/database"
	"ridechat/pkg/logger"
	"ridechat/pkg/moderation"
	"ridechat/pkg/queue"
	"ridechat/pkg/websocket"
	"ridechat/routes"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(&logger.Config{
		Level:   logger.LogLevel(cfg.App.LogLevel),
		Format:  cfg.App.LogFormat,
		Output:  cfg.App.LogOutput,
		AppName: cfg.App.Name,
		Version: cfg.App.Version,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// Storage
	mongo, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer mongo.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	applied, err := database.NewMigrator(mongo.Database).Up(migrateCtx)
	cancelMigrate()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to run migrations")
	}
	if len(applied) > 0 {
		appLogger.WithField("versions", applied).Info("Applied migrations")
	}

	redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisCache.Close()

	roomRepo := mongodb.NewChatRoomRepository(mongo.Database, redisCache, cfg.Redis.RoomCacheTTL)
	messageRepo := mongodb.NewMessageRepository(mongo.Database)

	// Realtime transport
	hub := websocket.NewHub(appLogger)
	hubStop := make(chan struct{})
	go hub.Run(hubStop)

	// Moderation pipeline
	moderationQueue := queue.NewRedisQueue(redisCache.Client(), cfg.Moderation.QueueName, services.ModerationJobOptions(cfg.Moderation), appLogger)
	moderationService := services.NewModerationService(moderationQueue, cfg.Moderation, appLogger)

	// Services
	messageService := services.NewMessageService(cfg.Chat, roomRepo, messageRepo, hub, moderationService, appLogger)
	presenceService := services.NewPresenceService(cfg.Chat, roomRepo, messageRepo, hub, appLogger)
	chatRoomService := services.NewChatRoomService(roomRepo, appLogger)

	hub.SetHandler(handlers.NewChatGateway(presenceService, messageService, hub, appLogger))

	var notifier alert.Notifier = alert.NopNotifier{}
	if cfg.Alerts.TopicARN != "" {
		snsNotifier, err := alert.NewSNSNotifier(context.Background(), cfg.Alerts.AWSRegion, cfg.Alerts.TopicARN)
		if err != nil {
			appLogger.WithError(err).Warn("Moderation alerts disabled")
		} else {
			notifier = snsNotifier
		}
	}

	worker := services.NewModerationWorker(
		cfg.Moderation,
		moderationQueue,
		services.NewTextNormalizationService(),
		moderation.NewOpenAIClassifier(cfg.Moderation, appLogger),
		messageService,
		notifier,
		appLogger,
	)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := worker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			appLogger.WithError(err).Error("Moderation worker exited")
		}
	}()

	// Initialize handlers
	chatHandler := handlers.NewChatRoomHandler(chatRoomService, messageService, presenceService, moderationQueue)
	wsHandler := websocket.NewHandler(hub, cfg.WebSocket, cfg.Chat.RequireAuth)

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(appLogger))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORSAllowedOrigins))
	if len(cfg.Security.TrustedProxies) > 0 {
		if err := router.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
			appLogger.WithError(err).Warn("Invalid trusted proxies")
		}
	}

	v1 := router.Group("/api/v1")
	{
		routes.SetupChatRoutes(v1, chatHandler, cfg.Security.JWTSecret)
	}
	routes.SetupRealtimeRoutes(router, cfg.WebSocket.Path, wsHandler, cfg.Security.JWTSecret, map[string]routes.HealthChecker{
		"mongodb": mongo,
		"redis":   redisCache,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithField("addr", server.Addr).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server shutdown failed")
	}
	close(hubStop)

	// Let pending submissions reach the queue before the worker stops.
	moderationService.Wait()
	stopWorker()
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		appLogger.Warn("Moderation worker did not stop in time")
	}
}
