package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"PaykiPlatform/pkg/logger"
)

// Notification системное уведомление
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Icon      string    `json:"icon"`
	Badge     string    `json:"badge"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationCenter показывает и закрывает уведомления
type NotificationCenter interface {
	Show(ctx context.Context, n Notification) error
	Close(ctx context.Context, id string) error
}

// WindowOpener открывает или фокусирует окно клиента
type WindowOpener interface {
	OpenWindow(ctx context.Context, url string) error
}

// pushPayload поля, которые отправитель может задать
type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// HandlePush разбирает полезную нагрузку и показывает уведомление.
// Пустая или поврежденная нагрузка дает уведомление со значениями по умолчанию.
func (c *Controller) HandlePush(ctx context.Context, payload []byte) (Notification, error) {
	var data pushPayload
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &data); err != nil {
			c.log.Debug("Malformed push payload, using defaults", logger.Error(err))
			data = pushPayload{}
		}
	}

	n := Notification{
		ID:        uuid.NewString(),
		Title:     orDefault(data.Title, c.opts.Push.Title),
		Body:      orDefault(data.Body, c.opts.Push.Body),
		Icon:      c.opts.Push.Icon,
		Badge:     c.opts.Push.Badge,
		URL:       c.localURL(data.URL),
		CreatedAt: c.opts.Now(),
	}

	if c.notifications == nil {
		return n, nil
	}
	if err := c.notifications.Show(ctx, n); err != nil {
		return n, err
	}
	c.log.Info("Notification shown", logger.String("id", n.ID), logger.String("url", n.URL))
	return n, nil
}

// HandleNotificationClick закрывает уведомление и открывает окно по его адресу
func (c *Controller) HandleNotificationClick(ctx context.Context, n Notification, opener WindowOpener) error {
	if c.notifications != nil {
		if err := c.notifications.Close(ctx, n.ID); err != nil {
			c.log.Warn("Failed to close notification", logger.String("id", n.ID), logger.Error(err))
		}
	}
	return opener.OpenWindow(ctx, c.localURL(n.URL))
}

// localURL приводит адрес уведомления к пути внутри origin приложения.
// Чужой origin или адрес вида //host заменяются адресом по умолчанию.
func (c *Controller) localURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return c.opts.Push.URL
	}
	ref, err := url.Parse(raw)
	if err != nil {
		c.log.Debug("Invalid notification url, using default", logger.String("url", raw))
		return c.opts.Push.URL
	}

	target := ref
	if c.opts.Origin != nil {
		target = c.opts.Origin.ResolveReference(ref)
		if !c.sameOriginURL(target) {
			c.log.Warn("Cross-origin notification url rejected", logger.String("url", raw))
			return c.opts.Push.URL
		}
	} else if ref.Scheme != "" || ref.Host != "" {
		return c.opts.Push.URL
	}

	if target.Path == "" {
		target.Path = "/"
	}
	if !strings.HasPrefix(target.Path, "/") || strings.HasPrefix(target.Path, "//") || strings.Contains(target.Path, "\\") {
		c.log.Warn("Ambiguous notification url rejected", logger.String("url", raw))
		return c.opts.Push.URL
	}

	local := &url.URL{Path: target.Path, RawPath: target.RawPath, RawQuery: target.RawQuery, Fragment: target.Fragment}
	return local.String()
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
