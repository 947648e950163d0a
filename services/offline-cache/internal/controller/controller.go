// Package controller перехватывает исходящие GET запросы к приложению и
// применяет к ним стратегию офлайн-кэша. Он же показывает push уведомления.
package controller

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/pkg/logger"
	"PaykiPlatform/pkg/metrics"
	"PaykiPlatform/services/offline-cache/internal/storage"
)

// HeaderCache сообщает, откуда взят ответ
const HeaderCache = "X-Payki-Cache"

// Источники ответа
const (
	SourceNetwork  = "network"
	SourceHit      = "hit"
	SourceFallback = "fallback"
	SourceShell    = "shell"
)

// Controller реализует http.RoundTripper. До активации запросы проходят без изменений.
type Controller struct {
	opts          Options
	storage       storage.CacheStorage
	transport     http.RoundTripper
	notifications NotificationCenter
	metrics       *metrics.Metrics
	log           logger.Logger

	claimed       atomic.Bool
	revalidations sync.WaitGroup
}

// New создает контроллер. transport выполняет реальные сетевые запросы.
func New(
	opts Options,
	cs storage.CacheStorage,
	transport http.RoundTripper,
	notifications NotificationCenter,
	m *metrics.Metrics,
	log logger.Logger,
) *Controller {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		opts:          opts,
		storage:       cs,
		transport:     transport,
		notifications: notifications,
		metrics:       m,
		log:           log.With(logger.String("generation", opts.Generation)),
	}
}

// Generation имя текущего поколения
func (c *Controller) Generation() string {
	return c.opts.Generation
}

// Claimed сообщает, перехватывает ли контроллер запросы
func (c *Controller) Claimed() bool {
	return c.claimed.Load()
}

// Storage хранилище поколений
func (c *Controller) Storage() storage.CacheStorage {
	return c.storage
}

// Install загружает список предзагрузки в текущее поколение. Поколение
// заполняется только если все ресурсы получены.
func (c *Controller) Install(ctx context.Context) error {
	c.log.Info("Installing cache generation", logger.Strings("precache", c.opts.Precache))

	fetched := make(map[string]*storage.StoredResponse, len(c.opts.Precache))
	for _, p := range c.opts.Precache {
		ref, err := url.Parse(p)
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrValidation, "invalid precache path "+p)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.Origin.ResolveReference(ref).String(), nil)
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrValidation, "invalid precache path "+p)
		}
		stored, err := c.fetch(req, c.opts.NavigationTimeout)
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "failed to precache "+p)
		}
		if !stored.OK() {
			return pkgerrors.New(pkgerrors.ErrUnavailable, "failed to precache "+p).
				WithDetails(http.StatusText(stored.Status))
		}
		fetched[req.URL.RequestURI()] = stored
	}

	cache, err := c.storage.Open(ctx, c.opts.Generation)
	if err != nil {
		return err
	}
	for key, stored := range fetched {
		if err := cache.Put(ctx, key, stored); err != nil {
			if _, derr := c.storage.Delete(ctx, c.opts.Generation); derr != nil {
				c.log.Warn("Failed to drop incomplete generation", logger.Error(derr))
			}
			return err
		}
	}

	c.log.Info("Cache generation installed", logger.Int("entries", len(fetched)))
	return nil
}

// Activate удаляет все поколения, кроме текущего, и начинает перехват запросов
func (c *Controller) Activate(ctx context.Context) error {
	names, err := c.storage.Keys(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == c.opts.Generation {
			continue
		}
		if _, err := c.storage.Delete(ctx, name); err != nil {
			return err
		}
		c.log.Info("Deleted stale cache generation", logger.String("name", name))
	}

	c.claimed.Store(true)
	c.log.Info("Cache controller activated")
	return nil
}

// Start выполняет установку и активацию
func (c *Controller) Start(ctx context.Context) error {
	if err := c.Install(ctx); err != nil {
		return err
	}
	return c.Activate(ctx)
}

// Clear удаляет все поколения. Перехват продолжается, кэш наполняется заново.
func (c *Controller) Clear(ctx context.Context) (int, error) {
	removed, err := storage.Clear(ctx, c.storage)
	if err != nil {
		return removed, err
	}
	c.log.Info("Cache storage cleared", logger.Int("generations", removed))
	return removed, nil
}

// Wait дожидается фоновых обновлений статики
func (c *Controller) Wait() {
	c.revalidations.Wait()
}

// RoundTrip выполняет запрос по стратегии его класса
func (c *Controller) RoundTrip(req *http.Request) (*http.Response, error) {
	if !c.Claimed() {
		return c.transport.RoundTrip(req)
	}

	class := c.Classify(req)
	switch class {
	case ClassNavigation:
		return c.networkFirst(req, class, c.opts.NavigationTimeout, true, true)
	case ClassStatic:
		return c.cacheFirst(req)
	case ClassAPI:
		return c.networkFirst(req, class, 0, c.opts.CacheAPI, false)
	case ClassNetworkFirst:
		return c.networkFirst(req, class, 0, true, false)
	default:
		c.metrics.ObserveCacheLookup(string(class), "passthrough")
		return c.transport.RoundTrip(req)
	}
}

// networkFirst идет в сеть, при ошибке отдает сохраненную копию запроса,
// а для навигации еще и корень приложения.
func (c *Controller) networkFirst(req *http.Request, class Class, timeout time.Duration, store, shell bool) (*http.Response, error) {
	ctx := req.Context()
	key := cacheKey(req)

	stored, err := c.fetch(req, timeout)
	if err == nil {
		if store {
			c.put(ctx, key, stored)
		}
		c.metrics.ObserveCacheLookup(string(class), SourceNetwork)
		return c.respond(req, stored, SourceNetwork), nil
	}

	c.log.Debug("Network request failed, trying cache",
		logger.String("class", string(class)),
		logger.String("key", key),
		logger.Error(err),
	)

	if cached := c.match(ctx, key); cached != nil {
		c.metrics.ObserveCacheLookup(string(class), SourceFallback)
		return c.respond(req, cached, SourceFallback), nil
	}
	if shell {
		if cached := c.match(ctx, "/"); cached != nil {
			c.metrics.ObserveCacheLookup(string(class), SourceShell)
			return c.respond(req, cached, SourceShell), nil
		}
	}

	c.metrics.ObserveCacheLookup(string(class), "miss")
	return nil, c.failure(req, err)
}

// cacheFirst отдает сохраненную копию сразу и обновляет ее в фоне
func (c *Controller) cacheFirst(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	key := cacheKey(req)

	if cached := c.match(ctx, key); cached != nil {
		c.revalidate(req, key)
		c.metrics.ObserveCacheLookup(string(ClassStatic), SourceHit)
		return c.respond(req, cached, SourceHit), nil
	}

	stored, err := c.fetch(req, 0)
	if err != nil {
		c.metrics.ObserveCacheLookup(string(ClassStatic), "miss")
		return nil, c.failure(req, err)
	}
	c.put(ctx, key, stored)
	c.metrics.ObserveCacheLookup(string(ClassStatic), SourceNetwork)
	return c.respond(req, stored, SourceNetwork), nil
}

func (c *Controller) revalidate(req *http.Request, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(req.Context()), c.revalidateTimeout())
	bg := req.Clone(ctx)

	c.revalidations.Add(1)
	go func() {
		defer c.revalidations.Done()
		defer cancel()

		stored, err := c.fetch(bg, 0)
		if err != nil {
			c.log.Debug("Background revalidation failed", logger.String("key", key), logger.Error(err))
			return
		}
		c.put(ctx, key, stored)
	}()
}

func (c *Controller) revalidateTimeout() time.Duration {
	if c.opts.RevalidateTimeout > 0 {
		return c.opts.RevalidateTimeout
	}
	return 30 * time.Second
}

// fetch выполняет запрос и читает тело целиком в пределах timeout
func (c *Controller) fetch(req *http.Request, timeout time.Duration) (*storage.StoredResponse, error) {
	ctx := req.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := c.transport.RoundTrip(req.Clone(ctx))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, pkgerrors.Wrap(ctx.Err(), pkgerrors.ErrTimeout, "network request timed out")
		}
		return nil, err
	}
	stored, err := storage.ReadResponse(resp, c.opts.Now())
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "failed to read response body")
	}
	return stored, nil
}

// put сохраняет успешный ответ в текущее поколение. Ошибки хранилища не
// влияют на ответ клиенту.
func (c *Controller) put(ctx context.Context, key string, stored *storage.StoredResponse) {
	if !cacheable(stored) {
		return
	}
	cache, err := c.storage.Open(ctx, c.opts.Generation)
	if err == nil {
		err = cache.Put(ctx, key, stored)
	}
	if err != nil {
		c.log.Warn("Failed to store response", logger.String("key", key), logger.Error(err))
	}
}

func (c *Controller) match(ctx context.Context, key string) *storage.StoredResponse {
	cached, err := c.storage.Match(ctx, key)
	if err != nil {
		c.log.Warn("Cache lookup failed", logger.String("key", key), logger.Error(err))
		return nil
	}
	return cached
}

func (c *Controller) respond(req *http.Request, stored *storage.StoredResponse, source string) *http.Response {
	resp := stored.Response(req)
	resp.Header.Set(HeaderCache, source)
	return resp
}

func (c *Controller) failure(req *http.Request, err error) error {
	if _, ok := pkgerrors.CodeOf(err); ok {
		return err
	}
	return pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "network request failed and no cached copy exists").
		WithDetails(req.URL.RequestURI())
}

// cacheKey ключ запроса в пределах одного origin
func cacheKey(req *http.Request) string {
	return req.URL.RequestURI()
}

// cacheable сохраняются только успешные ответы без запрета на хранение
func cacheable(stored *storage.StoredResponse) bool {
	if !stored.OK() {
		return false
	}
	return !strings.Contains(strings.ToLower(stored.Header.Get("Cache-Control")), "no-store")
}
