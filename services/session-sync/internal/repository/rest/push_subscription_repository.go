package rest

import (
	"context"
	"net/http"
	"net/url"

	"PaykiPlatform/services/session-sync/internal/domain"
	"PaykiPlatform/services/session-sync/internal/repository"
)

// PushSubscriptionRepository таблица push_subscriptions через PostgREST
type PushSubscriptionRepository struct {
	client *Client
}

// NewPushSubscriptionRepository создает репозиторий
func NewPushSubscriptionRepository(client *Client) repository.PushSubscriptionRepository {
	return &PushSubscriptionRepository{client: client}
}

// Upsert сохраняет подписку, конфликт по endpoint
func (r *PushSubscriptionRepository) Upsert(ctx context.Context, sub *domain.PushSubscription) error {
	query := url.Values{}
	query.Set("on_conflict", "endpoint")

	headers := map[string]string{"Prefer": "resolution=merge-duplicates,return=minimal"}
	return r.client.do(ctx, http.MethodPost, "/push_subscriptions", query, []*domain.PushSubscription{sub}, headers, nil)
}

// DeleteByUserID удаляет все подписки пользователя
func (r *PushSubscriptionRepository) DeleteByUserID(ctx context.Context, userID string) error {
	query := url.Values{}
	query.Set("user_id", eq(userID))
	return r.client.do(ctx, http.MethodDelete, "/push_subscriptions", query, nil, nil, nil)
}

// DeleteByEndpoint удаляет подписку по endpoint
func (r *PushSubscriptionRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	query := url.Values{}
	query.Set("endpoint", eq(endpoint))
	return r.client.do(ctx, http.MethodDelete, "/push_subscriptions", query, nil, nil, nil)
}
