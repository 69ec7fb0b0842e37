package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue — тип для имени очереди.
type Queue string

// EnsureDestination объявляет durable очередь-назначение для уведомлений.
//
// Имя очереди приходит из атрибута destination привязки notifier'а,
// поэтому топология не фиксируется константами: каждый conductor
// объявляет свою очередь перед первой публикацией. Объявление
// идемпотентно, повторный вызов безопасен.
func EnsureDestination(ctx context.Context, conn *Connection, destination Queue) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		_, err := ch.QueueDeclare(
			string(destination), // name
			true,                // durable
			false,               // delete when unused
			false,               // exclusive
			false,               // no-wait
			nil,                 // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", destination, err)
		}

		return nil
	})
}
