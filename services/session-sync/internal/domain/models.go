package domain

import (
	"time"
)

// Role роль пользователя в системе
type Role string

const (
	RolePassenger Role = "passenger"
	RoleDriver    Role = "driver"
	RoleAdmin     Role = "admin"
)

// Valid проверяет, что роль известна
func (r Role) Valid() bool {
	switch r {
	case RolePassenger, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// Roles возвращает все допустимые роли
func Roles() []string {
	return []string{string(RolePassenger), string(RoleDriver), string(RoleAdmin)}
}

// Benefit льгота пассажира
type Benefit string

const (
	BenefitNone        Benefit = "none"
	BenefitStudent     Benefit = "student"
	BenefitPolice      Benefit = "police"
	BenefitFirefighter Benefit = "firefighter"
)

// PassengerSector сектор пассажира
type PassengerSector string

const (
	SectorNormal PassengerSector = "normal"
	SectorEstado PassengerSector = "estado"
)

// Profile запись о роли и атрибутах пользователя
type Profile struct {
	ID              string           `json:"id"`
	FullName        string           `json:"full_name"`
	Role            Role             `json:"role"`
	PassengerSector *PassengerSector `json:"passenger_sector,omitempty"`
	Benefit         *Benefit         `json:"benefit,omitempty"`
	Balance         *float64         `json:"balance,omitempty"`
}

// Clone возвращает глубокую копию профиля
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	if p.PassengerSector != nil {
		v := *p.PassengerSector
		c.PassengerSector = &v
	}
	if p.Benefit != nil {
		v := *p.Benefit
		c.Benefit = &v
	}
	if p.Balance != nil {
		v := *p.Balance
		c.Balance = &v
	}
	return &c
}

// Session аутентифицированный пользователь и его токены
type Session struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// NeedsRefresh сообщает, что access токен истек или истечет в пределах skew
func (s *Session) NeedsRefresh(now time.Time, skew time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(s.ExpiresAt)
}

// Snapshot локальная копия профиля с моментом сохранения
type Snapshot struct {
	Profile    *Profile
	CapturedAt time.Time
}

// IsFresh возвращает true, если возраст снимка не превышает ttl.
// Снимок без отметки времени считается устаревшим.
func (s *Snapshot) IsFresh(now time.Time, ttl time.Duration) bool {
	if s == nil || s.Profile == nil || s.CapturedAt.IsZero() {
		return false
	}
	return now.Sub(s.CapturedAt) <= ttl
}

// AuthEvent событие изменения сессии у провайдера идентификации
type AuthEvent string

const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
)

// SessionListener получает события изменения сессии
type SessionListener func(event AuthEvent, session *Session)

// ErrorClass класс ошибки разрешения профиля
type ErrorClass string

const (
	ErrorClassNone         ErrorClass = ""
	ErrorClassConnectivity ErrorClass = "connectivity"
	ErrorClassTimeout      ErrorClass = "timeout"
	ErrorClassResolution   ErrorClass = "resolution"
)

// State состояние синхронизатора, которое читают потребители
type State struct {
	UserID     string     `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Email      string     `json:"email,omitempty" yaml:"email,omitempty"`
	Profile    *Profile   `json:"profile" yaml:"profile"`
	Loading    bool       `json:"loading" yaml:"loading"`
	Syncing    bool       `json:"syncing" yaml:"syncing"`
	Error      string     `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorClass ErrorClass `json:"error_class,omitempty" yaml:"error_class,omitempty"`
	Online     bool       `json:"online" yaml:"online"`
}

// Clone копирует состояние вместе с профилем
func (s State) Clone() State {
	s.Profile = s.Profile.Clone()
	return s
}

// PushSubscription подписка браузера на web push
type PushSubscription struct {
	Endpoint  string    `json:"endpoint"`
	UserID    string    `json:"user_id"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// TransactionType тип движения по счету пассажира
type TransactionType string

const (
	TransactionRide  TransactionType = "ride"
	TransactionTopup TransactionType = "topup"
)

// Transaction движение по счету
type Transaction struct {
	ID     string                 `json:"id"`
	Type   TransactionType        `json:"type"`
	Amount float64                `json:"amount"`
	TS     time.Time              `json:"ts"`
	Meta   map[string]interface{} `json:"meta,omitempty"`
}

// Activity строка истории для отображения
type Activity struct {
	ID     string          `json:"id" yaml:"id"`
	Type   TransactionType `json:"type" yaml:"type"`
	Label  string          `json:"label" yaml:"label"`
	Amount float64         `json:"amount" yaml:"amount"`
	Date   time.Time       `json:"date" yaml:"date"`
}

// PassengerSummary баланс и последние движения пассажира
type PassengerSummary struct {
	Balance float64    `json:"balance" yaml:"balance"`
	Recent  []Activity `json:"recent" yaml:"recent"`
}

// Shift рабочая смена водителя
type Shift struct {
	ID         string `json:"id" yaml:"id"`
	DriverID   string `json:"driver_id,omitempty" yaml:"driver_id,omitempty"`
	VehicleID  string `json:"vehicle_id,omitempty" yaml:"vehicle_id,omitempty"`
	OperatorID string `json:"operator_id,omitempty" yaml:"operator_id,omitempty"`
	Status     string `json:"status,omitempty" yaml:"status,omitempty"`
}

// Payment результат оплаты поездки
type Payment struct {
	ID     string  `json:"id" yaml:"id"`
	Amount float64 `json:"amount" yaml:"amount"`
}

// FareQR содержимое QR кода, который показывает водитель
type FareQR struct {
	Shift string `json:"shift"`
	Fare  string `json:"fare"`
}
