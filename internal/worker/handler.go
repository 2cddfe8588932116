package worker

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"storyreel-server/internal/ai"
	"storyreel-server/internal/interfaces"
	"storyreel-server/internal/messaging"
	"storyreel-server/internal/render"
	"storyreel-server/internal/segmenter"
	"storyreel-server/internal/storage"
)

// Метрики Prometheus воркера.
var (
	tasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyreel_worker_tasks_processed_total",
			Help: "Total number of generation tasks processed.",
		},
		[]string{"task_type", "status"}, // "success", "error", "error_unmarshal"
	)
	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storyreel_worker_task_duration_seconds",
		Help:    "Duration of generation task processing.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"task_type"})
	renderErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyreel_worker_render_errors_total",
		Help: "Total number of errors calling the render API.",
	})
	publishUpdateErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyreel_worker_publish_update_errors_total",
		Help: "Total number of errors publishing client updates.",
	})
)

// Handler обрабатывает входящие сообщения очереди генерации.
type Handler struct {
	logger   *zap.Logger
	pool     *pgxpool.Pool
	txHelper interfaces.TxManager

	storyRepo   interfaces.StoryRepository
	segmentRepo interfaces.SegmentRepository
	versionRepo interfaces.ImageVersionRepository
	creditsRepo interfaces.CreditsRepository
	decorRepo   interfaces.DecorImageRepository
	inboxRepo   interfaces.InboxRepository
	lock        interfaces.GenerationLock

	director  *ai.Director
	segmenter *segmenter.Segmenter
	renderer  render.Client
	store     storage.Store
	clientPub messaging.ClientUpdatePublisher

	segmentConcurrency int
	pusher             *push.Pusher
}

// HandlerDeps группирует зависимости Handler.
type HandlerDeps struct {
	Pool     *pgxpool.Pool
	TxHelper interfaces.TxManager

	StoryRepo   interfaces.StoryRepository
	SegmentRepo interfaces.SegmentRepository
	VersionRepo interfaces.ImageVersionRepository
	CreditsRepo interfaces.CreditsRepository
	DecorRepo   interfaces.DecorImageRepository
	InboxRepo   interfaces.InboxRepository
	Lock        interfaces.GenerationLock

	Director  *ai.Director
	Segmenter *segmenter.Segmenter
	Renderer  render.Client
	Store     storage.Store
	ClientPub messaging.ClientUpdatePublisher

	SegmentConcurrency int
	PushGatewayURL     string
}

// NewHandler creates a new instance of Handler.
func NewHandler(logger *zap.Logger, deps HandlerDeps) *Handler {
	if deps.ClientPub == nil {
		logger.Fatal("Client update publisher cannot be nil for worker handler")
	}

	hostname, _ := os.Hostname()
	pusher := push.New(deps.PushGatewayURL, "storyreel-worker").
		Grouping("instance", hostname).
		Gatherer(prometheus.DefaultGatherer)
	logger.Info("Prometheus Pusher initialized", zap.String("url", deps.PushGatewayURL), zap.String("instance", hostname))

	return &Handler{
		logger:             logger,
		pool:               deps.Pool,
		txHelper:           deps.TxHelper,
		storyRepo:          deps.StoryRepo,
		segmentRepo:        deps.SegmentRepo,
		versionRepo:        deps.VersionRepo,
		creditsRepo:        deps.CreditsRepo,
		decorRepo:          deps.DecorRepo,
		inboxRepo:          deps.InboxRepo,
		lock:               deps.Lock,
		director:           deps.Director,
		segmenter:          deps.Segmenter,
		renderer:           deps.Renderer,
		store:              deps.Store,
		clientPub:          deps.ClientPub,
		segmentConcurrency: deps.SegmentConcurrency,
		pusher:             pusher,
	}
}

// HandleDelivery обрабатывает одно сообщение очереди.
// Возвращает true, если сообщение должно быть подтверждено (ack).
// Бизнес-ошибки финализируются в БД и тоже подтверждаются: повтор
// задачи с уже записанным ошибочным состоянием бессмысленен.
func (h *Handler) HandleDelivery(ctx context.Context, msg amqp091.Delivery) bool {
	defer func() {
		if err := h.pusher.Push(); err != nil {
			h.logger.Error("Failed to push metrics to Pushgateway", zap.Error(err))
		}
	}()

	var payload messaging.GenerationTaskPayload
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		h.logger.Error("Failed to unmarshal task payload, sending to DLQ", zap.Error(err))
		tasksProcessed.WithLabelValues("unknown", "error_unmarshal").Inc()
		return false
	}

	log := h.logger.With(
		zap.String("task_id", payload.TaskID),
		zap.String("task_type", string(payload.TaskType)),
		zap.String("user_id", payload.UserID),
	)
	log.Info("Processing generation task")

	start := time.Now()
	var err error
	switch payload.TaskType {
	case messaging.TaskGuidedStory:
		err = h.handleGuidedStory(ctx, log, payload)
	case messaging.TaskStoryGeneration:
		err = h.handleStoryGeneration(ctx, log, payload)
	case messaging.TaskSegmentImage:
		err = h.handleSegmentImage(ctx, log, payload)
	case messaging.TaskUploadedImage:
		err = h.handleUploadedImage(ctx, log, payload)
	case messaging.TaskDecorateImage:
		err = h.handleDecorateImage(ctx, log, payload)
	case messaging.TaskLineVoiceover:
		err = h.handleLineVoiceover(ctx, log, payload)
	case messaging.TaskAgentReply:
		err = h.handleAgentReply(ctx, log, payload)
	default:
		log.Error("Unknown task type, sending to DLQ")
		tasksProcessed.WithLabelValues(string(payload.TaskType), "error_unmarshal").Inc()
		return false
	}
	taskDuration.WithLabelValues(string(payload.TaskType)).Observe(time.Since(start).Seconds())

	if err != nil {
		log.Error("Task finished with error", zap.Error(err))
		tasksProcessed.WithLabelValues(string(payload.TaskType), "error").Inc()
		return true
	}
	log.Info("Task finished successfully", zap.Duration("duration", time.Since(start)))
	tasksProcessed.WithLabelValues(string(payload.TaskType), "success").Inc()
	return true
}

// publishUpdate отправляет событие клиенту. Ошибка доставки логируется,
// но не влияет на судьбу задачи.
func (h *Handler) publishUpdate(ctx context.Context, log *zap.Logger, payload messaging.ClientUpdatePayload) {
	if err := h.clientPub.PublishClientUpdate(ctx, payload); err != nil {
		publishUpdateErrors.Inc()
		log.Error("Failed to publish client update", zap.String("update_type", string(payload.UpdateType)), zap.Error(err))
	}
}

// errText возвращает указатель на текст ошибки для записи в БД.
func errText(err error) *string {
	s := err.Error()
	return &s
}
