package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/services/session-sync/internal/domain"
	"PaykiPlatform/services/session-sync/internal/repository"
)

// DefaultPrefix префикс ключей снимков профиля
const DefaultPrefix = "payki:profile:"

// SnapshotRepository хранит снимок в двух ключах: {prefix}{uid} с JSON профиля
// и {prefix}{uid}:ts с моментом сохранения в миллисекундах
type SnapshotRepository struct {
	client *redis.Client
	prefix string
}

// NewSnapshotRepository создает репозиторий; пустой prefix заменяется на DefaultPrefix
func NewSnapshotRepository(client *redis.Client, prefix string) repository.SnapshotRepository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &SnapshotRepository{client: client, prefix: prefix}
}

func (r *SnapshotRepository) profileKey(userID string) string {
	return r.prefix + userID
}

func (r *SnapshotRepository) tsKey(userID string) string {
	return r.prefix + userID + ":ts"
}

// Load возвращает снимок; без ключа ts снимок возвращается с нулевым CapturedAt
func (r *SnapshotRepository) Load(ctx context.Context, userID string) (*domain.Snapshot, error) {
	values, err := r.client.MGet(ctx, r.profileKey(userID), r.tsKey(userID)).Result()
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "failed to load profile snapshot")
	}

	raw, ok := values[0].(string)
	if !ok || raw == "" {
		return nil, nil
	}

	var profile domain.Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		// Поврежденный снимок равносилен отсутствующему
		return nil, nil
	}

	snapshot := &domain.Snapshot{Profile: &profile}
	if ts, ok := values[1].(string); ok {
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil && ms > 0 {
			snapshot.CapturedAt = time.UnixMilli(ms).UTC()
		}
	}
	return snapshot, nil
}

// Save записывает профиль и отметку времени в одной транзакции
func (r *SnapshotRepository) Save(ctx context.Context, snapshot *domain.Snapshot) error {
	if snapshot == nil || snapshot.Profile == nil || snapshot.Profile.ID == "" {
		return pkgerrors.New(pkgerrors.ErrValidation, "snapshot without profile")
	}

	data, err := json.Marshal(snapshot.Profile)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to encode profile snapshot")
	}

	capturedAt := snapshot.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}

	uid := snapshot.Profile.ID
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.profileKey(uid), data, 0)
		pipe.Set(ctx, r.tsKey(uid), strconv.FormatInt(capturedAt.UnixMilli(), 10), 0)
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "failed to save profile snapshot")
	}
	return nil
}

// Invalidate удаляет отметку времени, профиль остается для оптимистичного показа
func (r *SnapshotRepository) Invalidate(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, r.tsKey(userID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "failed to invalidate profile snapshot")
	}
	return nil
}
