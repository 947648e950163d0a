package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/services/session-sync/internal/domain"
	"PaykiPlatform/services/session-sync/internal/repository"
)

// ActivityRepository баланс и транзакции пассажира
type ActivityRepository struct {
	db Querier
}

// NewActivityRepository создает репозиторий
func NewActivityRepository(db Querier) repository.ActivityRepository {
	return &ActivityRepository{db: db}
}

// GetBalance возвращает баланс; отсутствие профиля или NULL дают 0
func (r *ActivityRepository) GetBalance(ctx context.Context, userID string) (float64, error) {
	var balance float64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(balance, 0)::float8 FROM profiles WHERE id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to get balance").
			WithDetails("user_id: " + userID)
	}
	return balance, nil
}

// RecentTransactions возвращает последние поездки и пополнения, новые первыми
func (r *ActivityRepository) RecentTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	query := `
		SELECT id::text, type, amount::float8, ts, meta
		FROM transactions
		WHERE passenger_id = $1 AND type IN ('ride', 'topup')
		ORDER BY ts DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to query transactions").
			WithDetails("user_id: " + userID)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		var (
			tx     domain.Transaction
			txType string
		)
		if err := rows.Scan(&tx.ID, &txType, &tx.Amount, &tx.TS, &tx.Meta); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to scan transaction")
		}
		tx.Type = domain.TransactionType(txType)
		txs = append(txs, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to iterate transactions")
	}
	return txs, nil
}
