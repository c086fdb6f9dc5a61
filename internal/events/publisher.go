package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/config"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Message struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	OrderID     string            `json:"orderId"`
	OrderStatus order.OrderStatus `json:"orderStatus"`
	OccurredAt  time.Time         `json:"occurredAt"`
	Order       *order.Order      `json:"order"`
}

// Publisher отправляет события заказов в topic exchange, routing key = тип события.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  Channel
	exchange string
	now      func() time.Time
}

func NewPublisher(cfg config.EventsConfig) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("events: failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("events: failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	p := NewPublisherWithChannel(ch, cfg.Exchange)
	p.conn = conn
	log.Info().Str("exchange", cfg.Exchange).Msg("events: connected to broker")
	return p, nil
}

func NewPublisherWithChannel(ch Channel, exchange string) *Publisher {
	return &Publisher{
		channel:  ch,
		exchange: exchange,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *Publisher) PublishOrderEvent(ctx context.Context, eventType string, o *order.Order) error {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("events: failed to generate message id: %w", err)
	}

	now := p.now()
	body, err := json.Marshal(Message{
		ID:          id.String(),
		Type:        eventType,
		OrderID:     o.OrderID,
		OrderStatus: o.OrderStatus,
		OccurredAt:  now,
		Order:       o,
	})
	if err != nil {
		return fmt.Errorf("events: failed to encode %s for %s: %w", eventType, o.OrderID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, eventType, false, false, amqp.Publishing{
		MessageId:    id.String(),
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		ContentType:  "application/json",
		Type:         eventType,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("events: failed to publish %s for %s: %w", eventType, o.OrderID, err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.Warn().Err(err).Msg("events: failed to close channel")
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			log.Warn().Err(err).Msg("events: failed to close connection")
		}
	}
}
