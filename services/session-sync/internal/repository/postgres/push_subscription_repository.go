package postgres

import (
	"context"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/services/session-sync/internal/domain"
	"PaykiPlatform/services/session-sync/internal/repository"
)

// PushSubscriptionRepository таблица push_subscriptions
type PushSubscriptionRepository struct {
	db Querier
}

// NewPushSubscriptionRepository создает репозиторий
func NewPushSubscriptionRepository(db Querier) repository.PushSubscriptionRepository {
	return &PushSubscriptionRepository{db: db}
}

// Upsert сохраняет подписку, конфликт по endpoint
func (r *PushSubscriptionRepository) Upsert(ctx context.Context, sub *domain.PushSubscription) error {
	query := `
		INSERT INTO push_subscriptions (endpoint, user_id, p256dh, auth, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (endpoint) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			p256dh = EXCLUDED.p256dh,
			auth = EXCLUDED.auth,
			user_agent = EXCLUDED.user_agent
	`

	_, err := r.db.Exec(ctx, query, sub.Endpoint, sub.UserID, sub.P256dh, sub.Auth, sub.UserAgent, sub.CreatedAt)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to upsert push subscription").
			WithDetails("user_id: " + sub.UserID).
			WithContext(ctx)
	}
	return nil
}

// DeleteByUserID удаляет все подписки пользователя
func (r *PushSubscriptionRepository) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM push_subscriptions WHERE user_id = $1`, userID); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to delete push subscriptions").
			WithDetails("user_id: " + userID)
	}
	return nil
}

// DeleteByEndpoint удаляет подписку по endpoint
func (r *PushSubscriptionRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to delete push subscription")
	}
	return nil
}
