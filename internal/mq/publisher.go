package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди уведомлений.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRequestStatus MessageType = "request.status"
)

// Publisher публикует уведомления в брокер.
//
// Публикация идёт через default exchange: routing key совпадает с
// именем очереди-назначения, поэтому отдельная топология exchange'ей
// не нужна.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// RequestStatusPayload — payload уведомления о смене статуса request'а.
type RequestStatusPayload struct {
	RequestID uuid.UUID `json:"request_id"`
	Scope     string    `json:"scope"`
	Name      string    `json:"name"`
	Requester string    `json:"requester,omitempty"`
	Stage     string    `json:"stage"`
	Reason    string    `json:"reason,omitempty"`
}

// Publish публикует сообщение в очередь destination.
func (p *Publisher) Publish(ctx context.Context, destination string, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			"",          // default exchange
			destination, // routing key = имя очереди
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт брокера
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s: %w", destination, err)
		}

		p.logger.Debug("published message",
			"destination", destination,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishRequestStatus публикует уведомление о смене статуса request'а.
// Потребитель: внешние подписчики очереди уведомлений.
func (p *Publisher) PublishRequestStatus(ctx context.Context, destination string, payload RequestStatusPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeRequestStatus,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, destination, msg)
}
