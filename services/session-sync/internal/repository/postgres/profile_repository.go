package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/services/session-sync/internal/domain"
	"PaykiPlatform/services/session-sync/internal/repository"
)

const profileColumns = `id::text, full_name, role::text, passenger_sector::text, benefit::text, balance::float8`

// ProfileRepository профили в PostgreSQL
type ProfileRepository struct {
	db Querier
}

// NewProfileRepository создает репозиторий
func NewProfileRepository(db Querier) repository.ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByID возвращает профиль или nil, если строки нет
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	profile, err := scanProfile(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to get profile").
			WithDetails("id: " + id).
			WithContext(ctx)
	}
	return profile, nil
}

// EnsureProfile вызывает процедуру ensure_profile(p_id, p_email)
func (r *ProfileRepository) EnsureProfile(ctx context.Context, id, email string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM ensure_profile($1, $2)`

	profile, err := scanProfile(r.db.QueryRow(ctx, query, id, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "ensure_profile failed").
			WithDetails("id: " + id).
			WithContext(ctx)
	}
	return profile, nil
}

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var (
		p        domain.Profile
		fullName *string
		role     string
		sector   *string
		benefit  *string
	)

	if err := row.Scan(&p.ID, &fullName, &role, &sector, &benefit, &p.Balance); err != nil {
		return nil, err
	}

	p.Role = domain.Role(role)
	if fullName != nil {
		p.FullName = *fullName
	}
	if sector != nil {
		v := domain.PassengerSector(*sector)
		p.PassengerSector = &v
	}
	if benefit != nil {
		v := domain.Benefit(*benefit)
		p.Benefit = &v
	}
	return &p, nil
}
