package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"PaykiPlatform/pkg/logger"
)

// MessageHandler функция для обработки сообщения
type MessageHandler func(context.Context, amqp091.Delivery) error

// Consumer представляет консьюмера сообщений
type Consumer struct {
	conn   *Connection
	config *Config
	logger logger.Logger

	mu       sync.RWMutex
	handlers map[string]MessageHandler
}

// NewConsumer создает нового консьюмера
func NewConsumer(conn *Connection, config *Config, log logger.Logger) *Consumer {
	return &Consumer{
		conn:     conn,
		config:   config,
		logger:   log,
		handlers: make(map[string]MessageHandler),
	}
}

// RegisterHandler регистрирует обработчик для конкретной очереди
func (c *Consumer) RegisterHandler(queueName string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[queueName] = handler
}

// Start запускает чтение всех зарегистрированных очередей и блокируется до отмены ctx
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.RLock()
	handlers := make(map[string]MessageHandler, len(c.handlers))
	for queue, h := range c.handlers {
		handlers[queue] = h
	}
	c.mu.RUnlock()

	var wg sync.WaitGroup
	for queueName, handler := range handlers {
		wg.Add(1)
		go func(queue string, h MessageHandler) {
			defer wg.Done()
			for ctx.Err() == nil {
				if err := c.consume(ctx, queue, h); err != nil && ctx.Err() == nil {
					c.logger.Warn("Ошибка чтения очереди, переподключение",
						logger.String("queue", queue),
						logger.Duration("retry_in", c.config.ReconnectInterval),
						logger.Error(err))
					select {
					case <-ctx.Done():
					case <-time.After(c.config.ReconnectInterval):
					}
				}
			}
		}(queueName, handler)
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// consume объявляет очередь и обрабатывает сообщения до закрытия канала
func (c *Consumer) consume(ctx context.Context, queueName string, handler MessageHandler) error {
	if c.conn == nil || c.conn.Channel() == nil {
		return fmt.Errorf("rabbitmq channel is not initialized")
	}
	ch := c.conn.Channel()

	var args amqp091.Table
	if c.config.DLX != "" && c.config.DLQ != "" {
		args = amqp091.Table{
			"x-dead-letter-exchange":    c.config.DLX,
			"x-dead-letter-routing-key": c.config.DLQ,
		}
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	if c.config.Exchange != "" {
		if err := ch.QueueBind(queueName, c.config.RoutingKey, c.config.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to exchange %s: %w", queueName, c.config.Exchange, err)
		}
	}

	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer channel closed")
			}
			c.handleDelivery(ctx, queueName, handler, msg)
		}
	}
}

// handleDelivery вызывает обработчик и подтверждает сообщение.
// Ошибка обработчика возвращает сообщение в очередь, пока не исчерпан лимит доставок.
func (c *Consumer) handleDelivery(ctx context.Context, queueName string, handler MessageHandler, msg amqp091.Delivery) {
	timeout := c.config.HandlerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	msgCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := handler(msgCtx, msg)
	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			c.logger.Warn("Не удалось отправить ack", logger.Uint64("delivery_tag", msg.DeliveryTag), logger.Error(ackErr))
		}
		return
	}

	requeue := deliveryCount(msg) < c.config.MaxDeliveryCount && !msg.Redelivered
	c.logger.Warn("Ошибка обработки сообщения",
		logger.String("queue", queueName),
		logger.Bool("requeue", requeue),
		logger.Error(err))

	if nackErr := msg.Nack(false, requeue); nackErr != nil {
		c.logger.Warn("Не удалось отправить nack", logger.Uint64("delivery_tag", msg.DeliveryTag), logger.Error(nackErr))
	}
}

// deliveryCount считает предыдущие отказы по заголовку x-death
func deliveryCount(msg amqp091.Delivery) int {
	xDeath, ok := msg.Headers["x-death"].([]interface{})
	if !ok {
		return 0
	}
	total := 0
	for _, entry := range xDeath {
		table, ok := entry.(amqp091.Table)
		if !ok {
			total++
			continue
		}
		if count, ok := table["count"].(int64); ok {
			total += int(count)
		} else {
			total++
		}
	}
	return total
}
