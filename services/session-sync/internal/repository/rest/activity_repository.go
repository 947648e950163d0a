package rest

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"PaykiPlatform/services/session-sync/internal/domain"
	"PaykiPlatform/services/session-sync/internal/repository"
)

// ActivityRepository баланс и транзакции через PostgREST
type ActivityRepository struct {
	client *Client
}

// NewActivityRepository создает репозиторий
func NewActivityRepository(client *Client) repository.ActivityRepository {
	return &ActivityRepository{client: client}
}

// GetBalance возвращает баланс; отсутствие профиля или null дают 0
func (r *ActivityRepository) GetBalance(ctx context.Context, userID string) (float64, error) {
	query := url.Values{}
	query.Set("select", "balance")
	query.Set("id", eq(userID))
	query.Set("limit", "1")

	var rows []struct {
		Balance *float64 `json:"balance"`
	}
	if err := r.client.do(ctx, http.MethodGet, "/profiles", query, nil, nil, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 || rows[0].Balance == nil {
		return 0, nil
	}
	return *rows[0].Balance, nil
}

// RecentTransactions возвращает последние поездки и пополнения, новые первыми
func (r *ActivityRepository) RecentTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	query := url.Values{}
	query.Set("select", "id,type,amount,ts,meta")
	query.Set("passenger_id", eq(userID))
	query.Set("type", "in.(ride,topup)")
	query.Set("order", "ts.desc")
	query.Set("limit", strconv.Itoa(limit))

	var txs []*domain.Transaction
	if err := r.client.do(ctx, http.MethodGet, "/transactions", query, nil, nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}
