package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/services/session-sync/internal/domain"
	"PaykiPlatform/services/session-sync/internal/repository"
)

// ProfileRepository профили через PostgREST
type ProfileRepository struct {
	client *Client
}

// NewProfileRepository создает репозиторий
func NewProfileRepository(client *Client) repository.ProfileRepository {
	return &ProfileRepository{client: client}
}

// GetByID возвращает профиль или nil, если строки нет
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("id", eq(id))
	query.Set("limit", "1")

	var rows []*domain.Profile
	if err := r.client.do(ctx, http.MethodGet, "/profiles", query, nil, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// EnsureProfile вызывает rpc/ensure_profile; ответ может быть объектом или массивом
func (r *ProfileRepository) EnsureProfile(ctx context.Context, id, email string) (*domain.Profile, error) {
	body := map[string]string{"p_id": id, "p_email": email}

	var raw json.RawMessage
	if err := r.client.do(ctx, http.MethodPost, "/rpc/ensure_profile", nil, body, nil, &raw); err != nil {
		return nil, err
	}
	return decodeProfile(raw)
}

func decodeProfile(raw json.RawMessage) (*domain.Profile, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	if raw[0] == '[' {
		var rows []*domain.Profile
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to decode ensure_profile result")
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return rows[0], nil
	}

	var p domain.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to decode ensure_profile result")
	}
	if p.ID == "" {
		return nil, nil
	}
	return &p, nil
}
