// Package pubsub exports message lifecycle events to RabbitMQ.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"wadesk-backend/pkg/logger"
)

// Publisher publishes an envelope under a routing key
type Publisher interface {
	Publish(ctx context.Context, key string, msg Envelope) error
	Close() error
}

type rmqPublisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	ch       *amqp091.Channel
	exchange string
}

// New dials the broker, declares a durable topic exchange and enables publisher confirms
func New(url, exchange string) (Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable confirms: %w", err)
	}

	return &rmqPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish sends msg persistently and waits for the broker confirm
func (p *rmqPublisher) Publish(ctx context.Context, key string, msg Envelope) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	msgID := msg.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     msgID,
			CorrelationId: msg.Meta.CorrelationID,
			Timestamp:     time.Now(),
			Type:          msg.Meta.Type,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to confirm %s: %w", key, err)
	}
	if !acked {
		return fmt.Errorf("broker nacked %s", key)
	}
	return nil
}

func (p *rmqPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.ch.Close()
	return p.conn.Close()
}

// FallbackPublisher drops events; used when no broker is configured
type FallbackPublisher struct{}

// NewFallback returns a Publisher that only logs at debug level
func NewFallback() Publisher {
	return &FallbackPublisher{}
}

func (p *FallbackPublisher) Publish(ctx context.Context, key string, msg Envelope) error {
	logger.Debug("Event export disabled, skipped publish", zap.String("key", key))
	return nil
}

func (p *FallbackPublisher) Close() error {
	return nil
}
