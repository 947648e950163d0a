package file

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/services/session-sync/internal/domain"
	"PaykiPlatform/services/session-sync/internal/repository"
)

// SnapshotRepository хранит снимки в каталоге: profile-{uid}.json и profile-{uid}.ts
type SnapshotRepository struct {
	dir string
}

// NewSnapshotRepository создает каталог снимков, если его нет
func NewSnapshotRepository(dir string) (repository.SnapshotRepository, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to create snapshot directory")
	}
	return &SnapshotRepository{dir: dir}, nil
}

func (r *SnapshotRepository) base(userID string) string {
	// uid приходит от провайдера, но в имени файла разделители пути недопустимы
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(userID)
	return filepath.Join(r.dir, "profile-"+safe)
}

// Load возвращает снимок; без файла .ts снимок считается устаревшим
func (r *SnapshotRepository) Load(_ context.Context, userID string) (*domain.Snapshot, error) {
	data, err := os.ReadFile(r.base(userID) + ".json")
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to read profile snapshot")
	}

	var profile domain.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, nil
	}

	snapshot := &domain.Snapshot{Profile: &profile}
	if ts, err := os.ReadFile(r.base(userID) + ".ts"); err == nil {
		if ms, err := strconv.ParseInt(strings.TrimSpace(string(ts)), 10, 64); err == nil && ms > 0 {
			snapshot.CapturedAt = time.UnixMilli(ms).UTC()
		}
	}
	return snapshot, nil
}

// Save пишет профиль, затем отметку времени; каждый файл через временный и rename
func (r *SnapshotRepository) Save(_ context.Context, snapshot *domain.Snapshot) error {
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

	base := r.base(snapshot.Profile.ID)
	if err := writeAtomic(base+".json", data); err != nil {
		return err
	}
	return writeAtomic(base+".ts", []byte(strconv.FormatInt(capturedAt.UnixMilli(), 10)))
}

// Invalidate удаляет файл отметки времени
func (r *SnapshotRepository) Invalidate(_ context.Context, userID string) error {
	err := os.Remove(r.base(userID) + ".ts")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to invalidate profile snapshot")
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to write profile snapshot")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to write profile snapshot")
	}
	if err := tmp.Close(); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to write profile snapshot")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to write profile snapshot")
	}
	return nil
}
