package notifier

import (
	"context"

	"github.com/rabbitmq/amqp091-go"

	"PaykiPlatform/pkg/logger"
	"PaykiPlatform/pkg/metrics"
	"PaykiPlatform/pkg/rabbitmq"
	"PaykiPlatform/services/offline-cache/internal/controller"
)

// PushHandler показывает уведомление по полезной нагрузке
type PushHandler interface {
	HandlePush(ctx context.Context, payload []byte) (controller.Notification, error)
}

// Relay читает полезную нагрузку push из очереди RabbitMQ
type Relay struct {
	consumer *rabbitmq.Consumer
	queue    string
	handler  PushHandler
	metrics  *metrics.Metrics
	log      logger.Logger
}

// NewRelay создает ретранслятор для очереди queue
func NewRelay(consumer *rabbitmq.Consumer, queue string, handler PushHandler, m *metrics.Metrics, log logger.Logger) *Relay {
	return &Relay{
		consumer: consumer,
		queue:    queue,
		handler:  handler,
		metrics:  m,
		log:      log.With(logger.String("queue", queue)),
	}
}

// Start регистрирует обработчик и блокируется до отмены ctx
func (r *Relay) Start(ctx context.Context) error {
	r.consumer.RegisterHandler(r.queue, r.Handle)
	r.log.Info("Push relay started")
	return r.consumer.Start(ctx)
}

// Handle обрабатывает одно сообщение. Поврежденная нагрузка не возвращается в
// очередь: уведомление показывается со значениями по умолчанию.
func (r *Relay) Handle(ctx context.Context, msg amqp091.Delivery) error {
	n, err := r.handler.HandlePush(ctx, msg.Body)
	if err != nil {
		r.metrics.ObserveQueueMessage(r.queue, "error")
		return err
	}

	r.metrics.ObserveQueueMessage(r.queue, "delivered")
	r.log.Debug("Push payload delivered",
		logger.String("message_id", msg.MessageId),
		logger.String("notification_id", n.ID),
		logger.Any("sent_at", msg.Headers["sent_at"]),
	)
	return nil
}
