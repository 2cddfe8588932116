package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"storyreel-server/internal/logger"
	"storyreel-server/internal/utils"
)

// Config содержит общую конфигурацию сервера и воркера.
type Config struct {
	AppEnv string `envconfig:"APP_ENV" default:"development"`
	Port   string `envconfig:"SERVER_PORT" default:"8080"`

	Logger logger.Config

	// Постгрес
	DBHost        string        `envconfig:"DB_HOST" required:"true"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" required:"true"`
	DBName        string        `envconfig:"DB_NAME" required:"true"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	// Секретное поле БЕЗ envconfig тега
	DBPassword string

	// RabbitMQ
	RabbitMQURL            string `envconfig:"RABBITMQ_URL" required:"true"`
	GenerationTaskQueue    string `envconfig:"GENERATION_TASK_QUEUE" default:"generation_tasks"`
	ClientUpdatesQueueName string `envconfig:"CLIENT_UPDATES_QUEUE_NAME" default:"client_updates"`

	// Redis (блокировка активной генерации)
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPassword string

	// AI-провайдер (chat completions + TTS)
	AIBaseURL        string        `envconfig:"AI_BASE_URL" default:"https://openrouter.ai/api/v1"`
	AIModel          string        `envconfig:"AI_MODEL" default:"openai/gpt-4o-mini"`
	AITTSModel       string        `envconfig:"AI_TTS_MODEL" default:"tts-1"`
	AITimeout        time.Duration `envconfig:"AI_TIMEOUT" default:"120s"`
	AIMaxRetries     int           `envconfig:"AI_MAX_RETRIES" default:"3"`
	AIMaxPromptToken int           `envconfig:"AI_MAX_PROMPT_TOKENS" default:"24000"`
	// Секретное поле БЕЗ envconfig тега
	AIAPIKey string

	// Провайдер генерации изображений
	RenderAPIURL  string        `envconfig:"RENDER_API_URL" required:"true"`
	RenderTimeout time.Duration `envconfig:"RENDER_TIMEOUT" default:"300s"`
	// Секретное поле БЕЗ envconfig тега
	RenderAPIKey string

	// Blob-хранилище: local или s3
	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"local"`
	StorageBaseDir string `envconfig:"STORAGE_BASE_DIR" default:"./data/blobs"`
	StorageBaseURL string `envconfig:"STORAGE_BASE_URL" default:"http://localhost:8080/blobs"`
	S3Bucket       string `envconfig:"S3_BUCKET" default:""`
	S3Region       string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint     string `envconfig:"S3_ENDPOINT" default:""`

	// Параллелизм пайплайна сегментов
	SegmentConcurrency int `envconfig:"SEGMENT_CONCURRENCY" default:"4"`

	// Метрики воркера
	PushGatewayURL string `envconfig:"PUSHGATEWAY_URL" default:""`

	// CORS: список origin через запятую
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`

	// JWT (проверка токена пользователя в middleware)
	// Секретное поле БЕЗ envconfig тега
	JWTSecret string

	// Подпись вебхука платежного провайдера
	// Секретное поле БЕЗ envconfig тега
	PaymentWebhookSecret string
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

func (c *Config) getMaskedDSN() string {
	return fmt.Sprintf("postgres://%s:***@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// Load загружает конфигурацию из переменных окружения и секретов.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	var loadErr error
	cfg.DBPassword, loadErr = utils.ReadSecretOrEnv("db_password", "DB_PASSWORD")
	if loadErr != nil {
		return nil, loadErr
	}

	cfg.JWTSecret, loadErr = utils.ReadSecretOrEnv("jwt_secret", "JWT_SECRET")
	if loadErr != nil {
		return nil, loadErr
	}

	cfg.AIAPIKey, loadErr = utils.ReadSecretOrEnv("ai_api_key", "AI_API_KEY")
	if loadErr != nil {
		return nil, loadErr
	}

	cfg.RenderAPIKey, loadErr = utils.ReadSecretOrEnv("render_api_key", "RENDER_API_KEY")
	if loadErr != nil {
		return nil, loadErr
	}

	cfg.PaymentWebhookSecret, loadErr = utils.ReadSecretOrEnv("payment_webhook_secret", "PAYMENT_WEBHOOK_SECRET")
	if loadErr != nil {
		return nil, loadErr
	}

	// Пароль Redis опционален
	if pwd, err := utils.ReadSecretOrEnv("redis_password", "REDIS_PASSWORD"); err == nil {
		cfg.RedisPassword = pwd
	}

	log.Printf("Configuration loaded (secrets from files):")
	log.Printf("  Port: %s", cfg.Port)
	log.Printf("  LogLevel: %s", cfg.Logger.Level)
	log.Printf("  DB DSN: %s", cfg.getMaskedDSN())
	log.Printf("  DB Max Conns: %d", cfg.DBMaxConns)
	log.Printf("  RabbitMQ URL: %s", cfg.RabbitMQURL)
	log.Printf("  Generation Task Queue: %s", cfg.GenerationTaskQueue)
	log.Printf("  Client Updates Queue: %s", cfg.ClientUpdatesQueueName)
	log.Printf("  Redis Addr: %s", cfg.RedisAddr)
	log.Printf("  AI Base URL: %s", cfg.AIBaseURL)
	log.Printf("  AI Model: %s", cfg.AIModel)
	log.Printf("  Render API URL: %s", cfg.RenderAPIURL)
	log.Printf("  Storage Backend: %s", cfg.StorageBackend)
	log.Printf("  Segment Concurrency: %d", cfg.SegmentConcurrency)
	log.Println("  JWT Secret: [LOADED]")

	return &cfg, nil
}

// GetAllowedOrigins возвращает список origin для CORS.
func (c *Config) GetAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
