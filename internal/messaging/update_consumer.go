package messaging

import (
	"encoding/json"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// UpdateSink доставляет событие владельцу по его websocket-соединению.
type UpdateSink interface {
	SendToUser(userID string, message []byte) bool
}

// ClientUpdateConsumer читает очередь client_updates и пересылает события
// в websocket-менеджер. Очередь без DLX: событие пользователю оффлайн
// отбрасывается, актуальное состояние он получит по REST при загрузке.
type ClientUpdateConsumer struct {
	conn        *amqp.Connection
	sink        UpdateSink
	queueName   string
	stopChannel chan struct{}
}

// NewClientUpdateConsumer creates a new instance of ClientUpdateConsumer.
func NewClientUpdateConsumer(conn *amqp.Connection, sink UpdateSink, queueName string) *ClientUpdateConsumer {
	return &ClientUpdateConsumer{
		conn:        conn,
		sink:        sink,
		queueName:   queueName,
		stopChannel: make(chan struct{}),
	}
}

// StartConsuming блокирует, запускать в отдельной горутине.
func (c *ClientUpdateConsumer) StartConsuming() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("не удалось открыть канал RabbitMQ: %w", err)
	}
	defer ch.Close()

	// Параметры очереди должны совпадать с паблишером воркера.
	q, err := ch.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("не удалось объявить очередь '%s': %w", c.queueName, err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("не удалось установить QoS: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"storyreel-server-updates", // consumer tag
		false,                      // auto-ack
		false,                      // exclusive
		false,                      // no-local
		false,                      // no-wait
		nil,                        // args
	)
	if err != nil {
		return fmt.Errorf("не удалось зарегистрировать консьюмера: %w", err)
	}

	log.Printf("Консьюмер запущен, ожидание событий из очереди '%s'...", q.Name)

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				log.Println("Канал сообщений RabbitMQ закрыт")
				return nil
			}

			var update ClientUpdatePayload
			if err := json.Unmarshal(d.Body, &update); err != nil {
				log.Printf("Ошибка десериализации события клиента: %v. Nack.", err)
				_ = d.Nack(false, false)
				continue
			}
			if update.UserID == "" {
				log.Printf("Событие из очереди %s без userId. Nack.", c.queueName)
				_ = d.Nack(false, false)
				continue
			}

			if !c.sink.SendToUser(update.UserID, d.Body) {
				log.Printf("UserID=%s оффлайн, событие %s/%s отброшено", update.UserID, update.UpdateType, update.EntityID)
			}
			// Подтверждаем в обоих случаях: повтор доставки оффлайн-пользователю бессмыслен.
			_ = d.Ack(false)

		case <-c.stopChannel:
			log.Println("Получен сигнал остановки консьюмера RabbitMQ")
			return nil
		}
	}
}

// Stop останавливает консьюмер.
func (c *ClientUpdateConsumer) Stop() {
	close(c.stopChannel)
}
