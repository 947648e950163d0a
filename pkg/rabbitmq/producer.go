package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// Producer представляет продюсера сообщений
type Producer struct {
	conn   *Connection
	config *Config

	mu       sync.Mutex
	confirms chan amqp091.Confirmation
}

// NewProducer создает нового продюсера
func NewProducer(conn *Connection, config *Config) *Producer {
	return &Producer{conn: conn, config: config}
}

// PublishOptions представляет опции для публикации сообщения
type PublishOptions struct {
	Exchange     string
	RoutingKey   string
	Mandatory    bool
	Headers      amqp091.Table
	MessageID    string
	ConfirmAfter time.Duration
}

// PublishOption функция для настройки опций публикации
type PublishOption func(*PublishOptions)

// WithExchange устанавливает exchange
func WithExchange(exchange string) PublishOption {
	return func(opts *PublishOptions) {
		opts.Exchange = exchange
	}
}

// WithRoutingKey устанавливает routing key
func WithRoutingKey(routingKey string) PublishOption {
	return func(opts *PublishOptions) {
		opts.RoutingKey = routingKey
	}
}

// WithMandatory устанавливает mandatory флаг
func WithMandatory(mandatory bool) PublishOption {
	return func(opts *PublishOptions) {
		opts.Mandatory = mandatory
	}
}

// WithHeaders устанавливает заголовки
func WithHeaders(headers amqp091.Table) PublishOption {
	return func(opts *PublishOptions) {
		opts.Headers = headers
	}
}

// WithMessageID задает идентификатор сообщения
func WithMessageID(id string) PublishOption {
	return func(opts *PublishOptions) {
		opts.MessageID = id
	}
}

// WithConfirmTimeout задает время ожидания подтверждения брокера
func WithConfirmTimeout(d time.Duration) PublishOption {
	return func(opts *PublishOptions) {
		opts.ConfirmAfter = d
	}
}

// BuildPublishOptions применяет опции поверх значений из конфигурации
func (p *Producer) BuildPublishOptions(options ...PublishOption) *PublishOptions {
	opts := &PublishOptions{
		Exchange:     p.config.Exchange,
		RoutingKey:   p.config.RoutingKey,
		ConfirmAfter: 10 * time.Second,
	}
	for _, option := range options {
		option(opts)
	}
	if opts.MessageID == "" {
		opts.MessageID = uuid.NewString()
	}
	return opts
}

// Publish публикует сообщение и ждет подтверждения брокера
func (p *Producer) Publish(ctx context.Context, body []byte, options ...PublishOption) error {
	opts := p.BuildPublishOptions(options...)

	if p.conn == nil || p.conn.Channel() == nil {
		return fmt.Errorf("rabbitmq channel is not initialized")
	}
	ch := p.conn.Channel()

	// Публикации сериализуются, чтобы подтверждения приходили по порядку
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.confirms == nil {
		if err := ch.Confirm(false); err != nil {
			return fmt.Errorf("failed to enable confirm mode: %w", err)
		}
		p.confirms = ch.NotifyPublish(make(chan amqp091.Confirmation, 1))
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		MessageId:    opts.MessageID,
		Headers:      opts.Headers,
	}

	if err := ch.PublishWithContext(ctx, opts.Exchange, opts.RoutingKey, opts.Mandatory, false, msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	select {
	case confirm, ok := <-p.confirms:
		if !ok {
			return fmt.Errorf("channel closed while waiting for confirmation")
		}
		if !confirm.Ack {
			return fmt.Errorf("message rejected by broker")
		}
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for confirmation: %w", ctx.Err())
	case <-time.After(opts.ConfirmAfter):
		return fmt.Errorf("timeout waiting for confirmation")
	}

	return nil
}
