package service

import (
	"context"

	"PaykiPlatform/services/session-sync/internal/domain"
)

// IdentityProvider удаленный провайдер идентификации
type IdentityProvider interface {
	// GetSession возвращает текущую сессию или nil, если пользователь не вошел
	GetSession(ctx context.Context) (*domain.Session, error)

	// OnSessionChange подписывает listener и возвращает функцию отписки
	OnSessionChange(listener domain.SessionListener) (unsubscribe func())

	// SignOut отзывает сессию; scope "global" завершает все сессии пользователя
	SignOut(ctx context.Context, scope string) error
}

// CacheClearer очищает локальное хранилище кэша
type CacheClearer interface {
	ClearAll(ctx context.Context) error
}

// Navigator переводит клиента на другой путь
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc адаптер функции к Navigator
type NavigatorFunc func(path string)

// Navigate вызывает f(path)
func (f NavigatorFunc) Navigate(path string) { f(path) }
