package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"

	"content-indexer/internal/model"
)

// Publisher sends reload requests to the worker queue and reloaded events
// to downstream consumers.
type Publisher struct {
	conn        *amqp.Connection
	reloadQueue string
	eventsQueue string
}

func NewPublisher(conn *amqp.Connection, reloadQueue, eventsQueue string) *Publisher {
	return &Publisher{
		conn:        conn,
		reloadQueue: reloadQueue,
		eventsQueue: eventsQueue,
	}
}

func (p *Publisher) PublishReloaded(ctx context.Context, event model.ReloadedEvent) error {
	return p.publish(ctx, p.eventsQueue, "index.reloaded", event.RunID, event)
}

func (p *Publisher) PublishReloadRequest(ctx context.Context, req model.ReloadRequest) error {
	return p.publish(ctx, p.reloadQueue, "index.reload.request", req.RequestID, req)
}

func (p *Publisher) publish(ctx context.Context, queueName, msgType, msgID string, body any) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if _, err := DeclareQueue(ch, queueName); err != nil {
		return err
	}

	payload, err := sonic.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s payload failed: %w", msgType, err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			MessageId:    msgID,
			Timestamp:    time.Now(),
			Type:         msgType,
		},
	); err != nil {
		return fmt.Errorf("publish %s failed: %w", msgType, err)
	}
	return nil
}

// DeclareQueue declares a durable, non-exclusive queue.
func DeclareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("declare queue %s failed: %w", name, err)
	}
	return q, nil
}
