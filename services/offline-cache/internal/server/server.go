// Package server собирает HTTP обработчики офлайн-прокси
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/pkg/health"
	"PaykiPlatform/pkg/logger"
	"PaykiPlatform/services/offline-cache/internal/controller"
	"PaykiPlatform/services/offline-cache/internal/notifier"
)

// ControlPrefix служебные маршруты прокси
const ControlPrefix = "/_payki/"

// maxPushPayload ограничение размера полезной нагрузки push
const maxPushPayload = 4 << 10

// Handler маршруты прокси
type Handler struct {
	controller *controller.Controller
	inbox      *notifier.Inbox
	proxy      *httputil.ReverseProxy
	health     health.HealthChecker
	log        logger.Logger
}

// NewHandler создает обработчик. Все запросы вне служебных маршрутов
// уходят к origin через контроллер.
func NewHandler(origin *url.URL, c *controller.Controller, inbox *notifier.Inbox, checker health.HealthChecker, log logger.Logger) *Handler {
	h := &Handler{
		controller: c,
		inbox:      inbox,
		health:     checker,
		log:        log,
	}
	h.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
			pr.SetXForwarded()
		},
		Transport:    c,
		ErrorHandler: h.proxyError,
	}
	return h
}

// Routes возвращает mux со всеми маршрутами
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", health.Handler(h.health))
	mux.HandleFunc("GET /ready", health.ReadyHandler(h.health))
	mux.HandleFunc("GET /live", health.LiveHandler())

	mux.HandleFunc("GET "+ControlPrefix+"cache", h.cacheStatus)
	mux.HandleFunc("DELETE "+ControlPrefix+"cache", h.clearCache)
	mux.HandleFunc("GET "+ControlPrefix+"notifications", h.listNotifications)
	mux.HandleFunc("GET "+ControlPrefix+"notifications/{id}/click", h.clickNotification)
	mux.HandleFunc("POST "+ControlPrefix+"push", h.push)

	mux.Handle("/", h.proxy)
	return mux
}

type cacheStatusResponse struct {
	Generation  string   `json:"generation"`
	Claimed     bool     `json:"claimed"`
	Generations []string `json:"generations"`
}

func (h *Handler) cacheStatus(w http.ResponseWriter, r *http.Request) {
	names, err := h.controller.Storage().Keys(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cacheStatusResponse{
		Generation:  h.controller.Generation(),
		Claimed:     h.controller.Claimed(),
		Generations: names,
	})
}

func (h *Handler) clearCache(w http.ResponseWriter, r *http.Request) {
	removed, err := h.controller.Clear(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"generations_removed": removed})
}

func (h *Handler) listNotifications(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.inbox.List())
}

func (h *Handler) clickNotification(w http.ResponseWriter, r *http.Request) {
	n, err := h.inbox.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.controller.HandleNotificationClick(r.Context(), n, redirectOpener{w: w, r: r}); err != nil {
		h.writeError(w, err)
	}
}

func (h *Handler) push(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPushPayload+1))
	if err != nil {
		h.writeError(w, pkgerrors.Wrap(err, pkgerrors.ErrValidation, "failed to read push payload"))
		return
	}
	if len(payload) > maxPushPayload {
		h.writeError(w, pkgerrors.New(pkgerrors.ErrValidation, "push payload too large"))
		return
	}

	n, err := h.controller.HandlePush(r.Context(), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// proxyError ответ, когда ни сеть, ни кэш не дали результата
func (h *Handler) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	h.log.Warn("Proxy request failed",
		logger.String("path", r.URL.Path),
		logger.CtxField(r.Context()),
		logger.Error(err),
	)
	h.writeError(w, err)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *pkgerrors.Error
	if !errors.As(err, &appErr) {
		appErr = pkgerrors.Wrap(err, pkgerrors.ErrInternal, "internal error")
	}
	pkgerrors.WriteJSON(w, appErr)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// redirectOpener открывает окно клиента перенаправлением
type redirectOpener struct {
	w http.ResponseWriter
	r *http.Request
}

func (o redirectOpener) OpenWindow(_ context.Context, target string) error {
	http.Redirect(o.w, o.r, target, http.StatusFound)
	return nil
}
