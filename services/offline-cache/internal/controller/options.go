package controller

import (
	"net/url"
	"time"

	"PaykiPlatform/pkg/config"
	pkgerrors "PaykiPlatform/pkg/errors"
)

// PushDefaults значения уведомления, если их нет в полезной нагрузке
type PushDefaults struct {
	Title string
	Body  string
	Icon  string
	Badge string
	URL   string
}

// Options параметры контроллера
type Options struct {
	// Origin адрес приложения; запросы к другим адресам не перехватываются
	Origin            *url.URL
	Generation        string
	Precache          []string
	NavigationTimeout time.Duration
	// RevalidateTimeout ограничивает фоновое обновление статики
	RevalidateTimeout time.Duration
	APIPrefix         string
	// CacheAPI сохранять ли успешные ответы API
	CacheAPI bool

	BypassPrefixes     []string
	BypassContains     []string
	NavigationPrefixes []string
	StaticPrefixes     []string
	StaticExtensions   []string

	Push PushDefaults
	Now  func() time.Time
}

// DefaultOptions параметры для приложения PAYKI
func DefaultOptions(origin *url.URL) Options {
	precache := []string{"/", "/manifest.json", "/icons/icon-192.png", "/icons/icon-512.png"}
	return Options{
		Origin:             origin,
		Generation:         GenerationName("payki-cache", precache),
		Precache:           precache,
		NavigationTimeout:  5 * time.Second,
		RevalidateTimeout:  30 * time.Second,
		APIPrefix:          "/api/",
		BypassPrefixes:     []string{"/_next/", "/__nextjs_original-stack-frame"},
		BypassContains:     []string{"hot-update"},
		NavigationPrefixes: []string{"/user", "/driver", "/admin"},
		StaticPrefixes:     []string{"/icons/"},
		StaticExtensions:   []string{".css", ".js", ".woff", ".woff2", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"},
		Push: PushDefaults{
			Title: "PAYKI",
			Body:  "Notificación",
			Icon:  "/icons/icon-192.png",
			Badge: "/icons/icon-192.png",
			URL:   "/",
		},
		Now: time.Now,
	}
}

// OptionsFromConfig собирает параметры из конфигурации сервиса
func OptionsFromConfig(cache config.CacheConfig, push config.PushConfig) (Options, error) {
	origin, err := url.Parse(cache.OriginURL)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return Options{}, pkgerrors.New(pkgerrors.ErrValidation, "cache.origin_url must be an absolute URL")
	}

	opts := DefaultOptions(origin)
	if len(cache.Precache) > 0 {
		opts.Precache = append([]string(nil), cache.Precache...)
	}
	opts.Generation = GenerationName(cache.GenerationPrefix, opts.Precache)
	opts.NavigationTimeout = config.Duration(cache.NavigationTimeout, opts.NavigationTimeout)
	opts.APIPrefix = cache.APIPrefix
	opts.CacheAPI = cache.CacheAPI

	if push.DefaultTitle != "" {
		opts.Push.Title = push.DefaultTitle
	}
	if push.DefaultBody != "" {
		opts.Push.Body = push.DefaultBody
	}
	if push.DefaultIcon != "" {
		opts.Push.Icon = push.DefaultIcon
	}
	if push.DefaultBadge != "" {
		opts.Push.Badge = push.DefaultBadge
	}
	if push.DefaultURL != "" {
		opts.Push.URL = push.DefaultURL
	}
	return opts, nil
}
