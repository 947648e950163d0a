package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"PaykiPlatform/pkg/rabbitmq"
	"PaykiPlatform/services/session-sync/internal/domain"
)

// MockIdentityProvider мок провайдера идентификации.
// Подписчики OnSessionChange хранятся, чтобы тест мог вызвать Emit.
type MockIdentityProvider struct {
	mock.Mock

	mu        sync.Mutex
	listeners []domain.SessionListener
}

func (m *MockIdentityProvider) GetSession(ctx context.Context) (*domain.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockIdentityProvider) SignOut(ctx context.Context, scope string) error {
	args := m.Called(ctx, scope)
	return args.Error(0)
}

func (m *MockIdentityProvider) OnSessionChange(listener domain.SessionListener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
	idx := len(m.listeners) - 1
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.listeners[idx] = nil
	}
}

// Emit рассылает событие всем активным подписчикам
func (m *MockIdentityProvider) Emit(event domain.AuthEvent, session *domain.Session) {
	m.mu.Lock()
	listeners := append([]domain.SessionListener(nil), m.listeners...)
	m.mu.Unlock()
	for _, l := range listeners {
		if l != nil {
			l(event, session)
		}
	}
}

// MockCacheClearer мок для CacheClearer
type MockCacheClearer struct {
	mock.Mock
}

func (m *MockCacheClearer) ClearAll(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockPublisher мок для Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, body []byte, options ...rabbitmq.PublishOption) error {
	args := m.Called(ctx, body, options)
	return args.Error(0)
}
