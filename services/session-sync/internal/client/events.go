package client

import (
	"sync"

	"PaykiPlatform/services/session-sync/internal/domain"
)

// EventBus рассылает события сессии подписчикам
type EventBus struct {
	mu        sync.Mutex
	listeners map[uint64]domain.SessionListener
	nextID    uint64
}

// NewEventBus создает шину событий
func NewEventBus() *EventBus {
	return &EventBus{listeners: make(map[uint64]domain.SessionListener)}
}

// OnSessionChange подписывает listener и возвращает функцию отписки
func (b *EventBus) OnSessionChange(listener domain.SessionListener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.listeners[id] = listener

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// Emit синхронно вызывает всех подписчиков
func (b *EventBus) Emit(event domain.AuthEvent, session *domain.Session) {
	b.mu.Lock()
	listeners := make([]domain.SessionListener, 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	for _, l := range listeners {
		l(event, session)
	}
}
