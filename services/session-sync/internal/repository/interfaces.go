package repository

import (
	"context"

	"PaykiPlatform/services/session-sync/internal/domain"
)

// ProfileRepository доступ к профилям и процедуре ensure_profile
type ProfileRepository interface {
	// GetByID возвращает профиль или nil, nil если строки нет
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
	// EnsureProfile идемпотентно создает профиль и возвращает его
	EnsureProfile(ctx context.Context, id, email string) (*domain.Profile, error)
}

// SnapshotRepository локальный кэш профилей с отметкой времени
type SnapshotRepository interface {
	// Load возвращает снимок любого возраста или nil, nil
	Load(ctx context.Context, userID string) (*domain.Snapshot, error)
	// Save атомарно записывает профиль и текущую отметку времени
	Save(ctx context.Context, snapshot *domain.Snapshot) error
	// Invalidate делает снимок устаревшим, не удаляя профиль
	Invalidate(ctx context.Context, userID string) error
}

// PushSubscriptionRepository таблица push_subscriptions
type PushSubscriptionRepository interface {
	Upsert(ctx context.Context, sub *domain.PushSubscription) error
	DeleteByUserID(ctx context.Context, userID string) error
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// ActivityRepository баланс и история движений пассажира
type ActivityRepository interface {
	GetBalance(ctx context.Context, userID string) (float64, error)
	RecentTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error)
}
