// Package notifier доставляет push уведомления: принимает полезную нагрузку
// из очереди и хранит показанные уведомления до клика.
package notifier

import (
	"context"
	"sync"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/services/offline-cache/internal/controller"
)

// DefaultCapacity сколько уведомлений хранится одновременно
const DefaultCapacity = 100

// Inbox центр уведомлений в памяти. При переполнении вытесняются самые старые.
type Inbox struct {
	mu       sync.RWMutex
	capacity int
	items    []controller.Notification
}

// NewInbox создает центр уведомлений
func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Inbox{capacity: capacity}
}

// Show добавляет уведомление
func (i *Inbox) Show(_ context.Context, n controller.Notification) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.items = append(i.items, n)
	if over := len(i.items) - i.capacity; over > 0 {
		i.items = append([]controller.Notification(nil), i.items[over:]...)
	}
	return nil
}

// Close убирает уведомление; отсутствующее уведомление не ошибка
func (i *Inbox) Close(_ context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	for idx, n := range i.items {
		if n.ID == id {
			i.items = append(i.items[:idx], i.items[idx+1:]...)
			break
		}
	}
	return nil
}

// Get возвращает уведомление по id
func (i *Inbox) Get(id string) (controller.Notification, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	for _, n := range i.items {
		if n.ID == id {
			return n, nil
		}
	}
	return controller.Notification{}, pkgerrors.New(pkgerrors.ErrNotFound, "notification not found")
}

// List возвращает уведомления, новые первыми
func (i *Inbox) List() []controller.Notification {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]controller.Notification, len(i.items))
	for idx, n := range i.items {
		out[len(i.items)-1-idx] = n
	}
	return out
}
