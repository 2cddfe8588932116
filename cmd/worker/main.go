package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storyreel-server/internal/ai"
	"storyreel-server/internal/config"
	"storyreel-server/internal/database"
	"storyreel-server/internal/logger"
	"storyreel-server/internal/messaging"
	"storyreel-server/internal/render"
	"storyreel-server/internal/segmenter"
	"storyreel-server/internal/storage"
	"storyreel-server/internal/worker"
)

const (
	maxReconnectAttempts = 5
	reconnectDelay       = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	zap.ReplaceGlobals(appLogger)
	appLogger.Info("Starting Generation Worker...", zap.String("env", cfg.AppEnv))

	ctx := context.Background()

	// --- PostgreSQL ---
	pool, err := database.Connect(ctx, cfg.GetDSN(), cfg.DBMaxConns, cfg.DBIdleTimeout, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

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

	// --- Blob-хранилище ---
	store, err := buildStore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize blob storage", zap.Error(err))
	}

	// --- AI и рендер ---
	aiClient := ai.NewClient(ai.Config{
		APIKey:          cfg.AIAPIKey,
		BaseURL:         cfg.AIBaseURL,
		Model:           cfg.AIModel,
		TTSModel:        cfg.AITTSModel,
		Timeout:         cfg.AITimeout,
		MaxRetries:      cfg.AIMaxRetries,
		MaxPromptTokens: cfg.AIMaxPromptToken,
	}, appLogger)
	director := ai.NewDirector(aiClient, appLogger)
	renderer := render.NewClient(cfg.RenderAPIURL, cfg.RenderAPIKey, cfg.RenderTimeout, appLogger)

	// --- RabbitMQ ---
	mqCtx, mqCancel := context.WithCancel(context.Background())
	defer mqCancel()

	var wg sync.WaitGroup
	var conn *amqp091.Connection
	var clientPub messaging.ClientUpdatePublisher

	wg.Add(1)
	go func() {
		defer wg.Done()
		conn, clientPub = manageRabbitMQConnection(mqCtx, appLogger, cfg)
		appLogger.Info("RabbitMQ connection manager exited")
	}()

	// Ждем первого успешного подключения
	for clientPub == nil {
		appLogger.Info("Waiting for RabbitMQ client update publisher initialization...")
		time.Sleep(1 * time.Second)
		if mqCtx.Err() != nil {
			appLogger.Fatal("Failed to initialize RabbitMQ publisher within context deadline")
		}
	}

	handler := worker.NewHandler(appLogger, worker.HandlerDeps{
		Pool:     pool,
		TxHelper: database.NewTransactionHelper(pool, appLogger),

		StoryRepo:   database.NewPgStoryRepository(appLogger),
		SegmentRepo: database.NewPgSegmentRepository(appLogger),
		VersionRepo: database.NewPgImageVersionRepository(appLogger),
		CreditsRepo: database.NewPgCreditsRepository(appLogger),
		DecorRepo:   database.NewPgDecorImageRepository(appLogger),
		InboxRepo:   database.NewPgInboxRepository(appLogger),
		Lock:        database.NewRedisGenerationLock(redisClient, appLogger),

		Director:  director,
		Segmenter: segmenter.New(director, appLogger),
		Renderer:  renderer,
		Store:     store,
		ClientPub: clientPub,

		SegmentConcurrency: cfg.SegmentConcurrency,
		PushGatewayURL:     cfg.PushGatewayURL,
	})
	appLogger.Info("Message handler initialized")

	wg.Add(1)
	go func() {
		defer wg.Done()
		startConsumer(mqCtx, appLogger, cfg, conn, handler)
		appLogger.Info("RabbitMQ consumer exited")
	}()

	appLogger.Info("Generation Worker started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down Generation Worker...")
	mqCancel()
	wg.Wait()
	appLogger.Info("Generation Worker shut down gracefully")
}

// manageRabbitMQConnection управляет подключением и переподключением к RabbitMQ,
// а также инициализирует паблишер событий клиента.
func manageRabbitMQConnection(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*amqp091.Connection, messaging.ClientUpdatePublisher) {
	var conn *amqp091.Connection
	var err error
	var publisher messaging.ClientUpdatePublisher

	for attempt := 1; ; attempt++ {
		conn, err = amqp091.Dial(cfg.RabbitMQURL)
		if err == nil {
			logger.Info("RabbitMQ connected successfully")

			publisher, err = messaging.NewRabbitMQClientUpdatePublisher(conn, cfg.ClientUpdatesQueueName)
			if err != nil {
				logger.Error("Failed to create RabbitMQ publisher", zap.Error(err))
				conn.Close()
				conn = nil
			} else {
				logger.Info("RabbitMQ client update publisher initialized")
				break
			}
		}

		logger.Error("Failed to connect to RabbitMQ", zap.Int("attempt", attempt), zap.Error(err))
		if attempt >= maxReconnectAttempts {
			logger.Fatal("Max reconnect attempts reached, shutting down")
			return nil, nil
		}

		select {
		case <-time.After(reconnectDelay):
			logger.Info("Retrying RabbitMQ connection...")
		case <-ctx.Done():
			logger.Info("Context cancelled, stopping RabbitMQ connection attempts")
			return nil, nil
		}
	}

	_ = publisher

	notifyClose := make(chan *amqp091.Error)
	conn.NotifyClose(notifyClose)

	select {
	case closeErr := <-notifyClose:
		logger.Warn("RabbitMQ connection closed", zap.Error(closeErr))
		return manageRabbitMQConnection(ctx, logger, cfg)
	case <-ctx.Done():
		logger.Info("Context cancelled, closing RabbitMQ connection")
		if conn != nil {
			conn.Close()
		}
		return nil, nil
	}
}

// startConsumer запускает прослушивание очереди задач генерации.
func startConsumer(ctx context.Context, logger *zap.Logger, cfg *config.Config, conn *amqp091.Connection, handler *worker.Handler) {
	if conn == nil {
		logger.Error("Cannot start consumer, RabbitMQ connection is nil")
		return
	}

	ch, err := conn.Channel()
	if err != nil {
		logger.Error("Failed to open RabbitMQ channel for consumer", zap.Error(err))
		return
	}
	defer ch.Close()

	// Параметры очереди должны совпадать с паблишером API-сервера
	q, err := ch.QueueDeclare(
		cfg.GenerationTaskQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		messaging.TaskQueueArgs(),
	)
	if err != nil {
		logger.Error("Failed to declare task queue", zap.String("queue", cfg.GenerationTaskQueue), zap.Error(err))
		return
	}
	logger.Info("Task queue declared", zap.String("queue", q.Name), zap.Int("messages", q.Messages), zap.Int("consumers", q.Consumers))

	// По одной задаче за раз: генерация тяжелая
	if err := ch.Qos(1, 0, false); err != nil {
		logger.Error("Failed to set QoS", zap.Error(err))
		return
	}

	msgs, err := ch.Consume(
		q.Name,
		"storyreel-worker", // consumer tag
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		logger.Error("Failed to register consumer", zap.String("queue", q.Name), zap.Error(err))
		return
	}

	logger.Info("Consumer started, waiting for messages...")

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				logger.Warn("Consumer channel closed by RabbitMQ")
				return
			}
			logger.Debug("Received a message", zap.Uint64("delivery_tag", msg.DeliveryTag))
			if handler.HandleDelivery(ctx, msg) {
				if ackErr := msg.Ack(false); ackErr != nil {
					logger.Error("Failed to ack message", zap.Uint64("delivery_tag", msg.DeliveryTag), zap.Error(ackErr))
				}
			} else {
				// requeue=false: сообщение уходит в DLX
				if nackErr := msg.Nack(false, false); nackErr != nil {
					logger.Error("Failed to nack message", zap.Uint64("delivery_tag", msg.DeliveryTag), zap.Error(nackErr))
				}
			}
		case <-ctx.Done():
			logger.Info("Context cancelled, stopping consumer...")
			return
		}
	}
}

// buildStore выбирает бэкенд blob-хранилища по конфигурации.
func buildStore(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) (storage.Store, error) {
	if cfg.StorageBackend == "s3" {
		return storage.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint, cfg.StorageBaseURL, appLogger)
	}
	return storage.NewLocalStore(cfg.StorageBaseDir, cfg.StorageBaseURL, appLogger)
}
