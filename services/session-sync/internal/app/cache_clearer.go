package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/pkg/logger"
	"PaykiPlatform/services/session-sync/internal/service"
)

// CacheControlPath путь офлайн-прокси, удаляющий все поколения кэша
const CacheControlPath = "/_payki/cache"

// RedisCacheClearer удаляет все ключи поколений кэша из общего Redis
type RedisCacheClearer struct {
	client    *redis.Client
	namespace string
}

// NewRedisCacheClearer создает очистку по префиксу namespace
func NewRedisCacheClearer(client *redis.Client, namespace string) *RedisCacheClearer {
	return &RedisCacheClearer{client: client, namespace: namespace}
}

// ClearAll проходит SCAN по namespace и удаляет найденные ключи пачками
func (c *RedisCacheClearer) ClearAll(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.namespace+"*", 200).Result()
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "failed to scan cache keys")
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "failed to delete cache keys")
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// HTTPCacheClearer просит офлайн-прокси удалить свои поколения
type HTTPCacheClearer struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPCacheClearer создает очистку через управляющий endpoint прокси
func NewHTTPCacheClearer(baseURL string, timeout time.Duration) *HTTPCacheClearer {
	return &HTTPCacheClearer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ClearAll отправляет DELETE на CacheControlPath
func (c *HTTPCacheClearer) ClearAll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+CacheControlPath, nil)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to build cache clear request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "offline proxy unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return pkgerrors.New(pkgerrors.ErrUnavailable, "offline proxy refused cache clear").
			WithDetails(fmt.Sprintf("status: %d", resp.StatusCode))
	}
	return nil
}

// MultiClearer вызывает все очистки и собирает ошибки
type MultiClearer struct {
	clearers []service.CacheClearer
	logger   logger.Logger
}

// NewMultiClearer объединяет очистки; пустой список допустим
func NewMultiClearer(log logger.Logger, clearers ...service.CacheClearer) *MultiClearer {
	return &MultiClearer{clearers: clearers, logger: log}
}

// ClearAll выполняет каждую очистку, не останавливаясь на ошибке
func (m *MultiClearer) ClearAll(ctx context.Context) error {
	if len(m.clearers) == 0 {
		m.logger.Debug("No cache storage configured, nothing to clear")
		return nil
	}

	var errs []error
	for _, c := range m.clearers {
		if err := c.ClearAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
