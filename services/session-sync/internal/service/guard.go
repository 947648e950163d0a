package service

import (
	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/services/session-sync/internal/domain"
)

// Outcome итог проверки доступа к экрану с ролью
type Outcome string

const (
	OutcomeLoading        Outcome = "loading"
	OutcomeSignInRequired Outcome = "sign_in_required"
	OutcomeFailed         Outcome = "failed"
	OutcomeProfileMissing Outcome = "profile_missing"
	OutcomeWrongRole      Outcome = "wrong_role"
	OutcomeAllowed        Outcome = "allowed"
)

// Decision решение Guard и сообщение для пользователя
type Decision struct {
	Outcome Outcome           `json:"outcome" yaml:"outcome"`
	Message string            `json:"message,omitempty" yaml:"message,omitempty"`
	Class   domain.ErrorClass `json:"error_class,omitempty" yaml:"error_class,omitempty"`
}

var wrongRoleMessages = map[domain.Role]string{
	domain.RolePassenger: "Solo para pasajeros.",
	domain.RoleDriver:    "Solo para conductores.",
	domain.RoleAdmin:     "Solo admins.",
}

// Guard решает, можно ли показать экран, требующий роли role.
// Ошибка разрешения профиля отличается от отсутствия профиля.
func Guard(state domain.State, role domain.Role) Decision {
	switch {
	case state.Loading:
		return Decision{Outcome: OutcomeLoading, Message: "Cargando…"}
	case state.UserID == "":
		return Decision{Outcome: OutcomeSignInRequired, Message: "Inicia sesión."}
	case state.Profile == nil && state.Error != "":
		return Decision{Outcome: OutcomeFailed, Message: state.Error, Class: state.ErrorClass}
	case state.Profile == nil:
		return Decision{Outcome: OutcomeProfileMissing, Message: "Perfil no encontrado."}
	case state.Profile.Role != role:
		msg, ok := wrongRoleMessages[role]
		if !ok {
			msg = "Acceso denegado."
		}
		return Decision{Outcome: OutcomeWrongRole, Message: msg}
	}
	return Decision{Outcome: OutcomeAllowed}
}

// Allowed сообщает, что доступ разрешен
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllowed
}

// Err переводит решение в кодированную ошибку; nil если доступ разрешен
func (d Decision) Err() error {
	var code pkgerrors.ErrorCode
	switch d.Outcome {
	case OutcomeAllowed:
		return nil
	case OutcomeLoading:
		code = pkgerrors.ErrUnavailable
	case OutcomeSignInRequired:
		code = pkgerrors.ErrUnauthorized
	case OutcomeProfileMissing:
		code = pkgerrors.ErrNotFound
	case OutcomeWrongRole:
		code = pkgerrors.ErrForbidden
	case OutcomeFailed:
		switch d.Class {
		case domain.ErrorClassConnectivity:
			code = pkgerrors.ErrUnavailable
		case domain.ErrorClassTimeout:
			code = pkgerrors.ErrTimeout
		default:
			code = pkgerrors.ErrInternal
		}
	default:
		code = pkgerrors.ErrInternal
	}
	return pkgerrors.New(code, d.Message)
}
