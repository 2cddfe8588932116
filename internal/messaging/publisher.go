package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// TaskPublisher defines the interface for publishing tasks to the generation queue.
type TaskPublisher interface {
	PublishGenerationTask(ctx context.Context, payload GenerationTaskPayload) error
}

// ClientUpdatePublisher defines the interface for publishing updates to the client.
type ClientUpdatePublisher interface {
	PublishClientUpdate(ctx context.Context, payload ClientUpdatePayload) error
}

// rabbitMQPublisher implements the TaskPublisher and ClientUpdatePublisher interfaces for RabbitMQ.
type rabbitMQPublisher struct {
	channel   *amqp.Channel
	queueName string
	appID     string
}

// NewRabbitMQTaskPublisher creates a new instance of TaskPublisher.
// Паблишер объявляет очередь сам, чтобы система не зависела от порядка
// запуска сервисов. Параметры очереди должны совпадать с консьюмером.
func NewRabbitMQTaskPublisher(conn *amqp.Connection, queueName string) (TaskPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("task publisher: не удалось открыть канал: %w", err)
	}
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		TaskQueueArgs(),
	)
	if err != nil {
		log.Printf("TaskPublisher ERROR: Не удалось объявить очередь '%s': %v", queueName, err)
		ch.Close()
		return nil, fmt.Errorf("task publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}
	log.Printf("TaskPublisher: Очередь '%s' успешно объявлена/найдена.", queueName)
	return &rabbitMQPublisher{channel: ch, queueName: queueName, appID: "storyreel-server"}, nil
}

// NewRabbitMQClientUpdatePublisher creates a new instance of ClientUpdatePublisher.
func NewRabbitMQClientUpdatePublisher(conn *amqp.Connection, queueName string) (ClientUpdatePublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("client update publisher: не удалось открыть канал: %w", err)
	}
	// Очередь обновлений без DLX, потерянное обновление не критично
	_, err = ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("client update publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}
	log.Printf("ClientUpdatePublisher: очередь '%s' успешно объявлена/найдена", queueName)
	return &rabbitMQPublisher{channel: ch, queueName: queueName, appID: "storyreel-worker"}, nil
}

// PublishGenerationTask publishes a generation task.
func (p *rabbitMQPublisher) PublishGenerationTask(ctx context.Context, payload GenerationTaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[TaskID: %s][UserID: %s] Ошибка сериализации GenerationTaskPayload: %v", payload.TaskID, payload.UserID, err)
		return fmt.Errorf("ошибка сериализации задачи генерации для TaskID %s: %w", payload.TaskID, err)
	}

	err = p.publishMessage(ctx, body)
	if err != nil {
		log.Printf("[TaskID: %s][UserID: %s] Ошибка публикации GenerationTask: %v", payload.TaskID, payload.UserID, err)
		return fmt.Errorf("ошибка публикации задачи генерации для TaskID %s: %w", payload.TaskID, err)
	}
	return nil
}

// PublishClientUpdate publishes an update to the client.
func (p *rabbitMQPublisher) PublishClientUpdate(ctx context.Context, payload ClientUpdatePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Publisher: Ошибка маршалинга ClientUpdatePayload: %v", err)
		return fmt.Errorf("ошибка подготовки сообщения ClientUpdate: %w", err)
	}
	// Используем exchange по умолчанию и routing key = имя очереди
	return p.publishMessage(ctx, body)
}

// publishMessage is a helper method for publishing a message.
func (p *rabbitMQPublisher) publishMessage(ctx context.Context, body []byte) error {
	if p.channel == nil {
		log.Println("Ошибка публикации: канал RabbitMQ не инициализирован (nil)")
		return errors.New("канал RabbitMQ не инициализирован")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	// Попытка публикации с retry до 3 раз
	for attempt := 1; attempt <= 3; attempt++ {
		err = p.channel.PublishWithContext(ctx,
			"",          // exchange (используем default)
			p.queueName, // routing key (имя очереди)
			false,       // mandatory
			false,       // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
				AppId:        p.appID,
			},
		)
		if err == nil {
			break
		}
		log.Printf("Ошибка публикации (attempt %d) в очередь '%s': %v", attempt, p.queueName, err)
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("не удалось опубликовать сообщение в очередь '%s': %w", p.queueName, err)
	}
	return nil
}

// TaskQueueArgs - аргументы очереди задач генерации: DLX и lazy-режим.
func TaskQueueArgs() amqp.Table {
	return amqp.Table{
		"x-queue-mode":              "lazy",
		"x-dead-letter-exchange":    "generation_tasks_dlx",
		"x-dead-letter-routing-key": "dlq",
	}
}
