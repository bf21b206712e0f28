// Package rabbitmq publishes payment lifecycle events to a RabbitMQ topic exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/mateatletas/payments/internal/domain"
)

const DefaultExchange = "payment_events"

// channel is the subset of *amqp091.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher implements domain.EventPublisher. The event type is the routing key.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  channel
	exchange string
	declared bool
	logger   *zap.Logger
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewPublisher dials RabbitMQ with a bounded timeout.
func NewPublisher(amqpURL, exchange string, logger *zap.Logger) (*Publisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p := newPublisher(ch, exchange, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string, logger *zap.Logger) *Publisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{channel: ch, exchange: exchange, logger: logger.Named("rabbitmq")}
}

// Publish sends the event as JSON to the exchange.
func (p *Publisher) Publish(ctx context.Context, event domain.LifecycleEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.declare(); err != nil {
		return err
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    event.OccurredAt,
		MessageId:    event.EntityID + ":" + event.Type,
		Body:         body,
	}
	if err := p.channel.PublishWithContext(ctx, p.exchange, event.Type, false, false, msg); err != nil {
		p.logger.Warn("publish failed", zap.String("routing_key", event.Type), zap.Error(err))
		if !p.reopen() {
			return fmt.Errorf("publish %s: %w", event.Type, err)
		}
		if err := p.channel.PublishWithContext(ctx, p.exchange, event.Type, false, false, msg); err != nil {
			return fmt.Errorf("publish %s: %w", event.Type, err)
		}
	}
	return nil
}

func (p *Publisher) declare() error {
	if p.declared {
		return nil
	}
	if err := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.declared = true
	return nil
}

// reopen tries once to replace a broken channel.
func (p *Publisher) reopen() bool {
	if p.conn == nil {
		return false
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return false
	}
	p.channel = ch
	p.declared = false
	return p.declare() == nil
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *Publisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// Fallback is a no-op publisher used when RabbitMQ is not configured or unavailable at startup.
type Fallback struct {
	Logger *zap.Logger
}

func (f Fallback) Publish(_ context.Context, event domain.LifecycleEvent) error {
	if f.Logger != nil {
		f.Logger.Debug("publish skipped", zap.String("routing_key", event.Type), zap.String("entity_id", event.EntityID))
	}
	return nil
}
