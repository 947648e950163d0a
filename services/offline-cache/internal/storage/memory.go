package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStorage поколения в памяти процесса
type MemoryStorage struct {
	mu     sync.RWMutex
	order  []string
	caches map[string]*memoryCache
}

// NewMemoryStorage создает пустое хранилище
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{caches: make(map[string]*memoryCache)}
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*StoredResponse
}

// Open открывает или создает поколение
func (m *MemoryStorage) Open(_ context.Context, name string) (Cache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.caches[name]
	if !ok {
		c = &memoryCache{entries: make(map[string]*StoredResponse)}
		m.caches[name] = c
		m.order = append(m.order, name)
	}
	return c, nil
}

// Keys возвращает имена поколений в порядке создания
func (m *MemoryStorage) Keys(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...), nil
}

// Delete удаляет поколение
func (m *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.caches[name]; !ok {
		return false, nil
	}
	delete(m.caches, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Match ищет ключ во всех поколениях
func (m *MemoryStorage) Match(ctx context.Context, key string) (*StoredResponse, error) {
	m.mu.RLock()
	caches := make([]*memoryCache, 0, len(m.order))
	for _, name := range m.order {
		caches = append(caches, m.caches[name])
	}
	m.mu.RUnlock()

	for _, c := range caches {
		if resp, _ := c.Match(ctx, key); resp != nil {
			return resp, nil
		}
	}
	return nil, nil
}

func (c *memoryCache) Match(_ context.Context, key string) (*StoredResponse, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[key].Clone(), nil
}

func (c *memoryCache) Put(_ context.Context, key string, resp *StoredResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = resp.Clone()
	return nil
}

func (c *memoryCache) Keys(context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
