// Package rabbitmq отвечает за подключение к RabbitMQ и объявление
// обменника и очередей для уведомлений о подписках.
package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

// Connect устанавливает соединение с RabbitMQ и открывает канал.
func Connect(connectionString string) (*amqp.Connection, *amqp.Channel, error) {
	const op = "rabbitmq.Connect"
	conn, err := amqp.Dial(connectionString)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return conn, ch, nil
}

// SetupQueues объявляет обменник subscriptions и очереди для событий
// истечения и продления подписок.
func SetupQueues(ch *amqp.Channel) error {
	const op = "rabbitmq.SetupQueues"
	if err := ch.ExchangeDeclare(
		"subscriptions",
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for queue, key := range map[string]string{
		"subscriptions.expired":  "expired",
		"subscriptions.expiring": "expiring",
	} {
		q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := ch.QueueBind(q.Name, key, "subscriptions", false, nil); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}
