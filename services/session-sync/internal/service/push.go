package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/pkg/logger"
	"PaykiPlatform/pkg/rabbitmq"
	"PaykiPlatform/pkg/validation"
	"PaykiPlatform/services/session-sync/internal/domain"
	"PaykiPlatform/services/session-sync/internal/repository"
)

// Publisher публикует сообщения в брокер
type Publisher interface {
	Publish(ctx context.Context, body []byte, options ...rabbitmq.PublishOption) error
}

// PushMessage полезная нагрузка push уведомления
type PushMessage struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	URL   string `json:"url,omitempty"`
	Icon  string `json:"icon,omitempty"`
	Badge string `json:"badge,omitempty"`
}

// PushService регистрирует подписки и отправляет уведомления в очередь доставки
type PushService struct {
	repo       repository.PushSubscriptionRepository
	publisher  Publisher
	validator  *validation.Validator
	logger     logger.Logger
	routingKey string
	now        func() time.Time
}

// NewPushService создает сервис; publisher может быть nil, если отправка не нужна
func NewPushService(repo repository.PushSubscriptionRepository, publisher Publisher, routingKey string, log logger.Logger) *PushService {
	return &PushService{
		repo:       repo,
		publisher:  publisher,
		validator:  validation.NewValidator(),
		logger:     log,
		routingKey: routingKey,
		now:        time.Now,
	}
}

// Subscribe сохраняет подписку; повторная подписка с тем же endpoint перезаписывает ее
func (s *PushService) Subscribe(ctx context.Context, sub *domain.PushSubscription) error {
	if sub.UserID == "" {
		return pkgerrors.New(pkgerrors.ErrUnauthorized, "Inicia sesión.")
	}
	if err := s.validator.ValidateRequired(map[string]string{
		"p256dh": sub.P256dh,
		"auth":   sub.Auth,
	}); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrValidation, "invalid push subscription")
	}
	if err := s.validator.ValidateURL(sub.Endpoint, []string{"https"}); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrValidation, "invalid push endpoint")
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now().UTC()
	}

	if err := s.repo.Upsert(ctx, sub); err != nil {
		return err
	}
	s.logger.Info("Push subscription saved", logger.String("user_id", sub.UserID))
	return nil
}

// Unsubscribe удаляет подписку по endpoint
func (s *PushService) Unsubscribe(ctx context.Context, endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return pkgerrors.New(pkgerrors.ErrValidation, "endpoint is required")
	}
	return s.repo.DeleteByEndpoint(ctx, endpoint)
}

// Emit кладет уведомление в очередь доставки
func (s *PushService) Emit(ctx context.Context, msg PushMessage) error {
	if s.publisher == nil {
		return pkgerrors.New(pkgerrors.ErrUnavailable, "push relay is not configured")
	}
	if msg.URL != "" && !strings.HasPrefix(msg.URL, "/") {
		if err := s.validator.ValidateURL(msg.URL, []string{"http", "https"}); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrValidation, "invalid notification url")
		}
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to encode push message")
	}

	opts := []rabbitmq.PublishOption{
		rabbitmq.WithHeaders(amqp091.Table{"sent_at": s.now().UTC().Format(time.RFC3339)}),
	}
	if s.routingKey != "" {
		opts = append(opts, rabbitmq.WithRoutingKey(s.routingKey))
	}
	if err := s.publisher.Publish(ctx, body, opts...); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "failed to publish push message")
	}

	s.logger.Info("Push message queued", logger.String("title", msg.Title))
	return nil
}
