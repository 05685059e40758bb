package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	Close()
}

// channel is the part of *amqp.Channel the producer uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// connection is the part of *amqp.Connection the producer uses.
type connection interface {
	OpenChannel() (channel, error)
	IsClosed() bool
	Close() error
}

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) OpenChannel() (channel, error) {
	ch, err := c.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// EventProducer is responsible for publishing events to a RabbitMQ exchange.
type EventProducer struct {
	mu       sync.Mutex
	dial     func() (connection, error)
	conn     connection
	channel  channel
	declared map[string]bool
	logger   *zap.Logger
}

// EventProducerFallback is a no-op publisher used when RabbitMQ is not
// configured or unreachable at startup. It logs events instead of failing.
type EventProducerFallback struct {
	Logger *zap.Logger
}

func (p *EventProducerFallback) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if p.Logger != nil {
		p.Logger.Debug("event not published; broker unavailable",
			zap.String("exchange", exchange),
			zap.String("routing_key", routingKey),
			zap.Any("body", body),
		)
	}
	return nil
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	// Some secret stores prepend stray characters before the scheme.
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer dials RabbitMQ and opens a channel.
func NewEventProducer(amqpURL string, logger *zap.Logger) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Bounded dial timeout so startup does not hang indefinitely.
	dial := func() (connection, error) {
		conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
		if err != nil {
			return nil, err
		}
		return amqpConnection{conn}, nil
	}
	return newEventProducer(dial, logger)
}

func newEventProducer(dial func() (connection, error), logger *zap.Logger) (*EventProducer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &EventProducer{dial: dial, declared: map[string]bool{}, logger: logger}
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

// connectLocked opens a fresh channel, redialing first when the connection
// is gone. The previous channel is closed.
func (p *EventProducer) connectLocked() error {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		if p.conn != nil {
			_ = p.conn.Close()
		}
		conn, err := p.dial()
		if err != nil {
			p.conn = nil
			return err
		}
		p.conn = conn
	}
	ch, err := p.conn.OpenChannel()
	if err != nil {
		return err
	}
	p.channel = ch
	p.declared = map[string]bool{}
	return nil
}

// NewPublisher returns a connected producer, or the logging fallback when
// amqpURL is empty or the broker cannot be reached.
func NewPublisher(amqpURL string, logger *zap.Logger) Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(amqpURL) == "" {
		logger.Info("RABBITMQ_URL not set; domain events will only be logged")
		return &EventProducerFallback{Logger: logger}
	}
	producer, err := NewEventProducer(amqpURL, logger)
	if err != nil {
		logger.Warn("rabbitmq unavailable; falling back to logging publisher", zap.Error(err))
		return &EventProducerFallback{Logger: logger}
	}
	return producer
}

// Publish sends body as JSON to exchange. A failed publish reopens the
// channel, redialing a dropped connection, and retries once.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err = p.publishLocked(ctx, exchange, routingKey, payload); err == nil {
			return nil
		}
		p.logger.Warn("publish failed; reopening channel",
			zap.String("exchange", exchange),
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}

	if err := p.connectLocked(); err != nil {
		return err
	}
	return p.publishLocked(ctx, exchange, routingKey, payload)
}

func (p *EventProducer) publishLocked(ctx context.Context, exchange, routingKey string, payload []byte) error {
	if !p.declared[exchange] {
		if err := p.channel.ExchangeDeclare(
			exchange, // name
			"topic",  // type
			true,     // durable
			false,    // autoDelete
			false,    // internal
			false,    // noWait
			nil,      // args
		); err != nil {
			return err
		}
		p.declared[exchange] = true
	}

	return p.channel.PublishWithContext(ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         payload,
		},
	)
}

// Close closes the RabbitMQ connection and channel.
func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
