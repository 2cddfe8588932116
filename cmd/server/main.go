package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"storyreel-server/internal/config"
	"storyreel-server/internal/database"
	"storyreel-server/internal/handler"
	"storyreel-server/internal/logger"
	"storyreel-server/internal/messaging"
	"storyreel-server/internal/service"
	"storyreel-server/internal/storage"
	"storyreel-server/internal/ws"
)

func main() {
	// .env опционален, в production конфигурация приходит из окружения
	if err := godotenv.Load(); err != nil {
		zap.L().Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		zap.L().Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() { _ = appLogger.Sync() }()
	zap.ReplaceGlobals(appLogger)
	appLogger.Info("Logger initialized", zap.String("env", cfg.AppEnv))

	ctx := context.Background()

	// --- PostgreSQL ---
	pool, err := database.Connect(ctx, cfg.GetDSN(), cfg.DBMaxConns, cfg.DBIdleTimeout, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.ApplyMigrations(pool, appLogger); err != nil {
		appLogger.Fatal("Failed to apply migrations", zap.Error(err))
	}

	// --- Redis (блокировка активной генерации) ---
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	generationLock := database.NewRedisGenerationLock(redisClient, appLogger)

	// --- RabbitMQ ---
	mqConn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		appLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer mqConn.Close()

	taskPublisher, err := messaging.NewRabbitMQTaskPublisher(mqConn, cfg.GenerationTaskQueue)
	if err != nil {
		appLogger.Fatal("Failed to create task publisher", zap.Error(err))
	}

	// --- Blob-хранилище ---
	store, err := buildStore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize blob storage", zap.Error(err))
	}

	// --- Репозитории и сервисы ---
	txHelper := database.NewTransactionHelper(pool, appLogger)
	storyRepo := database.NewPgStoryRepository(appLogger)
	segmentRepo := database.NewPgSegmentRepository(appLogger)
	versionRepo := database.NewPgImageVersionRepository(appLogger)
	transitionRepo := database.NewPgTransitionRepository(appLogger)
	creditsRepo := database.NewPgCreditsRepository(appLogger)
	decorRepo := database.NewPgDecorImageRepository(appLogger)
	inboxRepo := database.NewPgInboxRepository(appLogger)

	storySvc := service.NewStoryService(pool, txHelper, storyRepo, segmentRepo, versionRepo, creditsRepo, generationLock, taskPublisher, store, appLogger)
	segmentSvc := service.NewSegmentService(pool, txHelper, storyRepo, segmentRepo, versionRepo, creditsRepo, taskPublisher, store, appLogger)
	transitionSvc := service.NewTransitionService(pool, storyRepo, segmentRepo, transitionRepo, appLogger)
	creditSvc := service.NewCreditService(pool, creditsRepo, cfg.PaymentWebhookSecret, appLogger)
	decorSvc := service.NewDecorService(pool, txHelper, decorRepo, creditsRepo, taskPublisher, store, appLogger)
	inboxSvc := service.NewInboxService(pool, txHelper, inboxRepo, taskPublisher, appLogger)

	apiHandler := handler.NewAPIHandler(storySvc, segmentSvc, transitionSvc, creditSvc, decorSvc, inboxSvc, appLogger)

	// --- WebSocket ---
	wsManager := ws.NewConnectionManager(appLogger)
	wsHandler := ws.NewHandler(wsManager, cfg.JWTSecret, appLogger)

	updateConsumer := messaging.NewClientUpdateConsumer(mqConn, wsManager, cfg.ClientUpdatesQueueName)
	go func() {
		if err := updateConsumer.StartConsuming(); err != nil {
			appLogger.Error("Client update consumer stopped with error", zap.Error(err))
		}
	}()

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.AppEnv == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(handler.GinZapLogger(appLogger))
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gin")

	corsConfig := cors.DefaultConfig()
	if origins := cfg.GetAllowedOrigins(); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	router.GET("/ws", wsHandler.ServeWS)

	// Локальный бэкенд хранит блобы на диске, отдаем их напрямую
	if cfg.StorageBackend == "local" {
		router.Static("/blobs", cfg.StorageBaseDir)
	}

	apiHandler.RegisterRoutes(router, handler.AuthMiddleware(cfg.JWTSecret, appLogger))

	// Prometheus применяется после регистрации роутов
	p.Use(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("HTTP server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	updateConsumer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	appLogger.Info("Server exited")
}

// buildStore выбирает бэкенд blob-хранилища по конфигурации.
func buildStore(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) (storage.Store, error) {
	if cfg.StorageBackend == "s3" {
		return storage.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint, cfg.StorageBaseURL, appLogger)
	}
	return storage.NewLocalStore(cfg.StorageBaseDir, cfg.StorageBaseURL, appLogger)
}
