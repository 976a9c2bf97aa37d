package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/niksmo/twin-supply/internal/core/domain"
	"github.com/niksmo/twin-supply/internal/core/port"
	"github.com/niksmo/twin-supply/pkg/retry"
)

const (
	DefaultExchange       = "order_exchange"
	OrderPlacedQueue      = "order_placed_queue"
	OrderPlacedRoutingKey = "order.placed"
)

var _ port.OrderEventsPublisher = (*OrderPublisher)(nil)

// Channel is the part of [*amqp.Channel] the publisher uses.
type Channel interface {
	PublishWithContext(
		ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing,
	) error
	Close() error
}

// OrderPublisher publishes [domain.OrderPlaced] as persistent JSON messages
// to a durable topic exchange.
type OrderPublisher struct {
	conn     *amqp.Connection
	ch       Channel
	exchange string
}

// Dial connects with a few retries and declares the exchange and the
// order placed queue.
func Dial(ctx context.Context, url, exchange string) (OrderPublisher, error) {
	const op = "rabbitmq.Dial"
	log := slog.With("op", op)

	if url == "" {
		return OrderPublisher{}, fmt.Errorf("%s: empty url: %w", op, domain.ErrNotConfigured)
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	retryCfg := retry.RetryConfig{
		MaxAttempts: 5,
		Backoff:     retry.ExponentialBackoff(500 * time.Millisecond),
	}
	conn, err := retry.DoWithResult(ctx, retryCfg, func() (*amqp.Connection, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("failed to connect, retrying", "err", err)
		}
		return conn, err
	})
	if err != nil {
		return OrderPublisher{}, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return OrderPublisher{}, fmt.Errorf("%s: failed to open channel: %w", op, err)
	}

	if err := declare(ch, exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return OrderPublisher{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("connected", "exchange", exchange)
	return OrderPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// NewOrderPublisher wraps an open channel.
func NewOrderPublisher(ch Channel, exchange string) (OrderPublisher, error) {
	if ch == nil {
		return OrderPublisher{}, errors.New("rabbitmq: channel is nil")
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	return OrderPublisher{ch: ch, exchange: exchange}, nil
}

func declare(ch *amqp.Channel, exchange string) error {
	err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	q, err := ch.QueueDeclare(OrderPlacedQueue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", OrderPlacedQueue, err)
	}

	err = ch.QueueBind(q.Name, OrderPlacedRoutingKey, exchange, false, nil)
	if err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", q.Name, err)
	}
	return nil
}

func (p OrderPublisher) PublishOrderPlaced(ctx context.Context, evt domain.OrderPlaced) error {
	const op = "OrderPublisher.PublishOrderPlaced"

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, OrderPlacedRoutingKey, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    evt.OrderID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	slog.Info("order event published", "op", op, "orderID", evt.OrderID)
	return nil
}

func (p OrderPublisher) Close() {
	const op = "OrderPublisher.Close"
	log := slog.With("op", op)

	log.Info("closing publisher...")
	if err := p.ch.Close(); err != nil {
		log.Error("failed to close channel", "err", err)
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			log.Error("failed to close connection", "err", err)
		}
	}
	log.Info("publisher is closed")
}
