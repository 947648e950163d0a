package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "PaykiPlatform/pkg/errors"
)

// TokenSource выдает access токен текущего пользователя
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client HTTP клиент PostgREST (/rest/v1) с ключом проекта и токеном пользователя
type Client struct {
	baseURL    string
	anonKey    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient создает клиента; projectURL адрес проекта без /rest/v1
func NewClient(projectURL, anonKey string, tokens TokenSource, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(projectURL, "/") + "/rest/v1",
		anonKey:    anonKey,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type apiError struct {
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
	Code    string `json:"code"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}, headers map[string]string, out interface{}) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to build request")
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "data store unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "failed to read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return restError(resp.StatusCode, data)
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to decode response")
		}
	}
	return nil
}

// restError переводит ответ PostgREST в ошибку. Хранилище ответило,
// поэтому 5xx остается ErrInternal: UNAVAILABLE только для сбоев транспорта.
func restError(status int, data []byte) error {
	var e apiError
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &e) == nil && e.Message != "" {
		msg = e.Message
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	code := pkgerrors.ErrInternal
	switch {
	case status == http.StatusUnauthorized:
		code = pkgerrors.ErrUnauthorized
	case status == http.StatusForbidden:
		code = pkgerrors.ErrForbidden
	case status == http.StatusNotFound:
		code = pkgerrors.ErrNotFound
	case status == http.StatusConflict:
		code = pkgerrors.ErrConflict
	}

	details := fmt.Sprintf("status: %d", status)
	if e.Code != "" {
		details += ", code: " + e.Code
	}
	return pkgerrors.New(code, msg).WithDetails(details)
}

func eq(value string) string {
	return "eq." + value
}
