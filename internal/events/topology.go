package events

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	// ExchangeEvents — события жизненного цикла выполнения.
	ExchangeEvents Exchange = "loom.events"
)

// Queues — имена очередей.
const (
	QueueRunEvents  Queue = "events.runs"
	QueueNodeEvents Queue = "events.nodes"
)

// Routing keys.
const (
	RoutingKeyRuns  RoutingKey = "runs"
	RoutingKeyNodes RoutingKey = "nodes"
)

// SetupTopology объявляет exchanges, queues и bindings.
//
// Вызывается при старте перед первой публикацией. Повторные вызовы
// безопасны: declare идемпотентен при совпадающих параметрах.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			string(ExchangeEvents), // name
			"direct",               // type
			true,                   // durable
			false,                  // auto-deleted
			false,                  // internal
			false,                  // no-wait
			nil,                    // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeEvents, err)
		}

		bindings := []struct {
			queue Queue
			key   RoutingKey
		}{
			{QueueRunEvents, RoutingKeyRuns},
			{QueueNodeEvents, RoutingKeyNodes},
		}

		for _, b := range bindings {
			if _, err := ch.QueueDeclare(
				string(b.queue), // name
				true,            // durable
				false,           // auto-delete
				false,           // exclusive
				false,           // no-wait
				nil,             // arguments
			); err != nil {
				return fmt.Errorf("declare queue %s: %w", b.queue, err)
			}

			if err := ch.QueueBind(
				string(b.queue),        // queue
				string(b.key),          // routing key
				string(ExchangeEvents), // exchange
				false,                  // no-wait
				nil,                    // arguments
			); err != nil {
				return fmt.Errorf("bind queue %s: %w", b.queue, err)
			}
		}

		return nil
	})
}
