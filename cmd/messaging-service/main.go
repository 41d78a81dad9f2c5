package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	adminHandler "wadesk-backend/internal/handler/http/admin"
	chatHandler "wadesk-backend/internal/handler/http/chat"
	conversationHandler "wadesk-backend/internal/handler/http/conversation"
	webhookHandler "wadesk-backend/internal/handler/http/webhook"
	wsHandler "wadesk-backend/internal/handler/ws"
	"wadesk-backend/internal/gateway/waboxapp"
	"wadesk-backend/internal/hub"
	"wadesk-backend/internal/middleware"
	"wadesk-backend/internal/repository/cockroach"
	"wadesk-backend/internal/repository/redis"
	chatService "wadesk-backend/internal/service/chat"
	conversationService "wadesk-backend/internal/service/conversation"
	storageService "wadesk-backend/internal/service/storage"
	webhookService "wadesk-backend/internal/service/webhook"
	"wadesk-backend/pkg/audit"
	"wadesk-backend/pkg/cache"
	"wadesk-backend/pkg/config"
	"wadesk-backend/pkg/constants"
	"wadesk-backend/pkg/database"
	"wadesk-backend/pkg/jwt"
	"wadesk-backend/pkg/logger"
	"wadesk-backend/pkg/metrics"
	"wadesk-backend/pkg/pubsub"
)

func main() {
	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// 2. CockroachDB
	cockroachDB, err := database.NewCockroachDB(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to CockroachDB", zap.Error(err))
	}
	defer cockroachDB.Close()

	if err := cockroach.EnsureSchema(ctx, cockroachDB.Pool); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	logger.Info("Connected to CockroachDB", zap.String("host", cfg.Database.Host))

	// 3. Redis
	redisDB, err := database.NewRedisDB(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisDB.Close()
	logger.Info("Connected to Redis", zap.String("host", cfg.Redis.Host))

	// 4. Blob store
	minioClient, err := storageService.NewMinioStorage(&cfg.MinIO)
	if err != nil {
		logger.Fatal("Failed to create MinIO client", zap.Error(err))
	}
	blobStore, err := storageService.NewService(ctx, minioClient, cfg.MinIO.Bucket)
	if err != nil {
		logger.Fatal("Failed to initialize blob store", zap.Error(err))
	}

	// 5. Event export
	var publisher pubsub.Publisher
	if cfg.AMQP.URL != "" {
		publisher, err = pubsub.New(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logger.Warn("Event broker unavailable, exporting to log", zap.Error(err))
			publisher = pubsub.NewFallback()
		}
	} else {
		publisher = pubsub.NewFallback()
	}
	defer publisher.Close()

	// 6. Repositories
	conversationRepo := cockroach.NewConversationRepository(cockroachDB.Pool)
	messageRepo := cockroach.NewMessageRepository(cockroachDB.Pool)
	customerRepo := cockroach.NewCustomerRepository(cockroachDB.Pool)
	userRepo := cockroach.NewUserRepository(cockroachDB.Pool)
	settingsRepo := cache.NewSettingsCache(cockroach.NewSettingsRepository(cockroachDB.Pool), constants.SettingsCacheTTL)
	presenceRepo := redis.NewPresenceRepository(redisDB.Client)

	// 7. Services
	liveHub := hub.New(presenceRepo)
	gateway := waboxapp.NewClient(&cfg.Gateway)

	chatSvc := chatService.NewService(
		conversationRepo,
		messageRepo,
		customerRepo,
		gateway,
		blobStore,
		liveHub,
		publisher,
		chatService.Options{
			SignedURLTTL: cfg.Media.SignedURLTTL,
			Producer:     cfg.Server.ServiceName,
		},
	)
	conversationSvc := conversationService.NewService(
		conversationRepo,
		customerRepo,
		userRepo,
		settingsRepo,
		chatSvc,
		conversationService.Defaults{
			UserID:   cfg.Tenant.DefaultUserID,
			SenderID: cfg.Tenant.DefaultSenderID,
		},
	)
	mediaFetcher := webhookService.NewMediaFetcher(blobStore, cfg.Media.FetchTimeout, cfg.Media.MaxBytes)
	webhookSvc := webhookService.NewService(conversationSvc, chatSvc, messageRepo, mediaFetcher, cfg.Gateway.WebhookToken)

	// 8. Metrics
	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)
	go reportPoolStats(cockroachDB, appMetrics)

	// 9. Handlers
	chatHdlr := chatHandler.NewHandler(chatSvc, blobStore, presenceRepo, cfg.Media.UploadMaxBytes)
	conversationHdlr := conversationHandler.NewHandler(conversationSvc)
	auditLog := audit.NewLogger(redisDB.Client, audit.DefaultRetain)
	adminHdlr := adminHandler.NewHandler(conversationSvc, chatSvc, auditLog)
	webhookHdlr := webhookHandler.NewHandler(webhookSvc)
	pushHdlr := wsHandler.NewPushHandler(liveHub, cfg.Server.AllowedOrigins)
	streamHdlr := wsHandler.NewStreamHandler(liveHub)

	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, 15*time.Minute)
	revocationChecker := middleware.NewRedisRevocationChecker(redisDB.Client)
	sendLimiter := middleware.NewRateLimiter(redisDB.Client, "send", cfg.RateLimit.Sends, cfg.RateLimit.Window)

	// 10. Router
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(prometheusMiddleware.Handler())

	router.GET("/health", middleware.HealthCheck(cfg.Server.ServiceName, map[string]middleware.Probe{
		"database": func(ctx context.Context) error { return cockroachDB.Pool.Ping(ctx) },
		"redis":    func(ctx context.Context) error { return redisDB.Client.Ping(ctx).Err() },
	}))
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	// Gateway callbacks authenticate with the shared webhook token
	router.GET("/webhook/gateway", webhookHdlr.Ping)
	router.POST("/webhook/gateway", middleware.Timeout(cfg.Server.RequestTimeout), webhookHdlr.Receive)

	// Live push; browsers cannot set headers on websocket or EventSource requests
	stream := router.Group("/v1")
	stream.Use(middleware.AuthMiddleware(jwtManager, revocationChecker, middleware.AuthOptions{AllowQueryToken: true}))
	{
		stream.GET("/ws", pushHdlr.ServeWS)
		stream.GET("/events", streamHdlr.ServeSSE)
	}

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager, revocationChecker))
	v1.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	{
		sendHandlers := []gin.HandlerFunc{chatHdlr.SendMessage}
		if cfg.RateLimit.Sends > 0 {
			sendHandlers = append([]gin.HandlerFunc{sendLimiter.Middleware()}, sendHandlers...)
		}
		v1.POST("/messages", sendHandlers...)
		v1.GET("/messages/search", chatHdlr.SearchMessages)
		v1.GET("/messages/starred", chatHdlr.GetStarred)
		v1.PATCH("/messages/:id/star", chatHdlr.StarMessage)
		v1.POST("/messages/:id/forward", chatHdlr.ForwardMessage)

		v1.GET("/conversations", conversationHdlr.ListConversations)
		v1.GET("/conversations/search", conversationHdlr.SearchConversations)
		v1.GET("/conversations/:id/messages", chatHdlr.GetMessages)
		v1.POST("/conversations/:id/read", chatHdlr.MarkRead)

		v1.GET("/presence", chatHdlr.GetPresence)

		admin := v1.Group("/admin")
		admin.Use(middleware.RequireRole("admin"), middleware.Audit(auditLog))
		{
			admin.POST("/customers", adminHdlr.CreateCustomer)
			admin.POST("/users/:id/provision", adminHdlr.ProvisionUser)
			admin.PATCH("/conversations/:id/assignee", adminHdlr.Reassign)
			admin.POST("/conversations/:id/repair", adminHdlr.RepairConversation)
			admin.POST("/repair", adminHdlr.RepairAll)
			admin.GET("/default-user", adminHdlr.GetDefaultUser)
			admin.PUT("/default-user", adminHdlr.SetDefaultUser)
			admin.GET("/audit", adminHdlr.GetAuditLog)
		}
	}

	// 11. Start server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Messaging service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 12. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	liveHub.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func reportPoolStats(db *database.CockroachDB, m *metrics.Metrics) {
	ticker := time.NewTicker(constants.PoolStatsInterval)
	defer ticker.Stop()

	for range ticker.C {
		stat := db.Pool.Stat()
		m.SetDBConnections(int(stat.AcquiredConns()), int(stat.IdleConns()))
	}
}
