package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-room-service/internal/cache"
	"chat-room-service/internal/config"
	"chat-room-service/internal/db"
	"chat-room-service/internal/handlers"
	"chat-room-service/internal/middleware"
	"chat-room-service/internal/observability"
	"chat-room-service/internal/rabbitmq"
	"chat-room-service/internal/repositories"
	"chat-room-service/internal/services"
	"chat-room-service/internal/telemetry"
	"chat-room-service/internal/ws"
)

const serviceName = "chat-room-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("audit publisher mode=%s reason=%q", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	emitter := telemetry.NewAuditEmitter(publisher, "audit.chat", serviceName, cfg.Environment)

	if eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange); err != nil {
		log.Printf("ws event publisher disabled: %v", err)
	} else {
		observability.SetPublisher(eventPublisher, serviceName)
		defer eventPublisher.Close()
	}

	history := cache.NewHistoryCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if history == nil {
		log.Printf("history cache disabled")
	} else {
		defer history.Close()
	}

	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub()
	chatService := services.NewChatService(roomRepo, messageRepo, hub, history)

	chatHandler := handlers.NewChatHandler(chatService, emitter)
	roomWS := ws.NewRoomWebSocketHandler(hub, roomRepo, chatService)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(otelgin.Middleware(serviceName))

	router.POST("/api/chat/rooms/direct", chatHandler.StartDirectRoom)
	router.GET("/api/chat/rooms/my", chatHandler.MyRooms)
	router.POST("/api/chat/messages", chatHandler.SendMessage)
	router.GET("/api/chat/rooms/:room_id/messages", chatHandler.GetHistory)
	router.DELETE("/api/chat/rooms/:room_id/leave", chatHandler.LeaveRoom)

	router.GET("/ws/rooms/:room_id", roomWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, emitter, cfg.Debug)

	if err := router.Run(":" + cfg.ServerPort); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
