package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/pkg/logger"
	"PaykiPlatform/services/session-sync/internal/domain"
	"PaykiPlatform/services/session-sync/internal/store"
)

// refreshSkew за сколько до истечения access токена он обновляется
const refreshSkew = 60 * time.Second

// IdentityClient клиент GoTrue API провайдера идентификации.
// Сессия хранится в файле, изменения рассылаются через EventBus.
type IdentityClient struct {
	*EventBus

	baseURL    string
	anonKey    string
	httpClient *http.Client
	store      *store.SessionStore
	logger     logger.Logger
	now        func() time.Time

	refreshMu sync.Mutex
}

// NewIdentityClient создает клиента
func NewIdentityClient(baseURL, anonKey string, sessions *store.SessionStore, log logger.Logger) *IdentityClient {
	return &IdentityClient{
		EventBus:   NewEventBus(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		store:      sessions,
		logger:     log,
		now:        time.Now,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

// SignInWithPassword выполняет вход по email и паролю и сохраняет сессию
func (c *IdentityClient) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	body := map[string]string{"email": email, "password": password}

	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &resp); err != nil {
		return nil, err
	}

	session, err := c.sessionFromToken(&resp)
	if err != nil {
		return nil, err
	}
	if err := c.store.Save(session); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to persist session")
	}

	c.logger.Info("Signed in", logger.String("user_id", session.UserID))
	c.Emit(domain.EventSignedIn, session)
	return session, nil
}

// GetSession возвращает сохраненную сессию, при необходимости обновляя токен.
// Если refresh токен отклонен, сессия удаляется и возвращается nil.
func (c *IdentityClient) GetSession(ctx context.Context) (*domain.Session, error) {
	session, err := c.store.Load()
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to load session")
	}
	if session == nil || !session.NeedsRefresh(c.now(), refreshSkew) {
		return session, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Сессию мог обновить параллельный вызов
	if latest, err := c.store.Load(); err == nil && latest != nil && !latest.NeedsRefresh(c.now(), refreshSkew) {
		return latest, nil
	}

	refreshed, err := c.refresh(ctx, session.RefreshToken)
	if err != nil {
		if code, ok := pkgerrors.CodeOf(err); ok && code == pkgerrors.ErrUnauthorized {
			c.logger.Warn("Refresh token rejected, signing out", logger.String("user_id", session.UserID), logger.Error(err))
			if clearErr := c.store.Clear(); clearErr != nil {
				c.logger.Warn("Failed to clear session", logger.Error(clearErr))
			}
			c.Emit(domain.EventSignedOut, nil)
			return nil, nil
		}
		if c.now().Before(session.ExpiresAt) {
			return session, nil
		}
		return nil, err
	}

	if err := c.store.Save(refreshed); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to persist session")
	}
	c.Emit(domain.EventTokenRefreshed, refreshed)
	return refreshed, nil
}

// AccessToken возвращает действующий access токен
func (c *IdentityClient) AccessToken(ctx context.Context) (string, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if session == nil || session.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.ErrUnauthorized, "Inicia sesión.")
	}
	return session.AccessToken, nil
}

// SignOut отзывает сессию у провайдера. Локальная сессия удаляется всегда.
func (c *IdentityClient) SignOut(ctx context.Context, scope string) error {
	session, loadErr := c.store.Load()

	var remoteErr error
	if loadErr == nil && session != nil && session.AccessToken != "" {
		path := "/auth/v1/logout"
		if scope != "" {
			path += "?scope=" + url.QueryEscape(scope)
		}
		remoteErr = c.do(ctx, http.MethodPost, path, session.AccessToken, nil, nil)
	}

	if err := c.store.Clear(); err != nil {
		c.logger.Warn("Failed to clear session", logger.Error(err))
	}
	c.Emit(domain.EventSignedOut, nil)

	return remoteErr
}

// Health проверяет доступность провайдера
func (c *IdentityClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/auth/v1/health", "", nil, nil)
}

func (c *IdentityClient) refresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	if refreshToken == "" {
		return nil, pkgerrors.New(pkgerrors.ErrUnauthorized, "refresh token is missing")
	}

	var resp tokenResponse
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &resp); err != nil {
		return nil, err
	}
	return c.sessionFromToken(&resp)
}

// sessionFromToken собирает сессию из ответа; недостающие поля берутся из claims
func (c *IdentityClient) sessionFromToken(resp *tokenResponse) (*domain.Session, error) {
	if resp.AccessToken == "" {
		return nil, pkgerrors.New(pkgerrors.ErrUnauthorized, "identity provider returned no access token")
	}

	session := &domain.Session{
		UserID:       resp.User.ID,
		Email:        resp.User.Email,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	switch {
	case resp.ExpiresAt > 0:
		session.ExpiresAt = time.Unix(resp.ExpiresAt, 0).UTC()
	case resp.ExpiresIn > 0:
		session.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	}

	claims, err := ParseClaims(resp.AccessToken)
	if err != nil {
		c.logger.Debug("Access token is not a JWT", logger.Error(err))
	} else {
		if session.UserID == "" {
			session.UserID = claims.Subject
		}
		if session.Email == "" {
			session.Email = claims.Email
		}
		if session.ExpiresAt.IsZero() && claims.ExpiresAt != nil {
			session.ExpiresAt = claims.ExpiresAt.Time.UTC()
		}
	}

	if session.UserID == "" {
		return nil, pkgerrors.New(pkgerrors.ErrUnauthorized, "identity provider returned no user")
	}
	return session, nil
}

// Claims поля access токена, которые нужны клиенту
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// ParseClaims читает claims без проверки подписи: токен проверяет сервер
func ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *IdentityClient) do(ctx context.Context, method, path, bearer string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to build request")
	}
	req.Header.Set("apikey", c.anonKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	} else if c.anonKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.anonKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "identity provider unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "failed to read identity response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return identityError(resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to decode identity response")
		}
	}
	return nil
}

func identityError(status int, data []byte) error {
	var e errorResponse
	_ = json.Unmarshal(data, &e)

	msg := firstNonEmpty(e.ErrorDescription, e.Msg, e.Message, e.Error, strings.TrimSpace(string(data)), http.StatusText(status))

	code := pkgerrors.ErrUnauthorized
	switch {
	case status >= 500:
		code = pkgerrors.ErrInternal
	case status == http.StatusTooManyRequests:
		code = pkgerrors.ErrTooManyRequests
	}
	return pkgerrors.New(code, msg).WithDetails(fmt.Sprintf("status: %d", status))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
