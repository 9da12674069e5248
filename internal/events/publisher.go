package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher публикует события жизненного цикла в RabbitMQ.
//
// Реализует Sink. Run-события уходят с routing key "runs",
// node-события — с "nodes".
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

// RunStarted публикует событие о старте run.
func (p *Publisher) RunStarted(ctx context.Context, payload RunStartedPayload) error {
	return p.publish(ctx, RoutingKeyRuns, EventTypeRunStarted, payload)
}

// RunFinished публикует событие о завершении run.
func (p *Publisher) RunFinished(ctx context.Context, payload RunFinishedPayload) error {
	return p.publish(ctx, RoutingKeyRuns, EventTypeRunFinished, payload)
}

// NodeStarted публикует событие о старте узла.
func (p *Publisher) NodeStarted(ctx context.Context, payload NodeStartedPayload) error {
	return p.publish(ctx, RoutingKeyNodes, EventTypeNodeStarted, payload)
}

// NodeFinished публикует событие о завершении узла.
func (p *Publisher) NodeFinished(ctx context.Context, payload NodeFinishedPayload) error {
	return p.publish(ctx, RoutingKeyNodes, EventTypeNodeFinished, payload)
}

// publish сериализует и публикует событие в ExchangeEvents.
func (p *Publisher) publish(ctx context.Context, routingKey RoutingKey, eventType EventType, payload any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(ExchangeEvents), // exchange
			string(routingKey),     // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // событие переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", ExchangeEvents, routingKey, err)
		}

		p.logger.Debug("published event",
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}
