package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/pkg/logger"
	"PaykiPlatform/services/session-sync/internal/domain"
	"PaykiPlatform/services/session-sync/internal/store"
)

var testNow = time.Date(2025, 3, 5, 8, 0, 0, 0, time.UTC)

func signToken(t *testing.T, sub, email string, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.AuthEvent
}

func (r *eventRecorder) listen(event domain.AuthEvent, _ *domain.Session) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *eventRecorder) all() []domain.AuthEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuthEvent(nil), r.events...)
}

func newIdentity(t *testing.T, handler http.Handler) (*IdentityClient, *store.SessionStore, *eventRecorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sessions, err := store.NewSessionStore(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)

	c := NewIdentityClient(srv.URL, "anon-key", sessions, logger.NewNopLogger())
	c.now = func() time.Time { return testNow }

	rec := &eventRecorder{}
	c.OnSessionChange(rec.listen)
	return c, sessions, rec
}

func TestIdentity_SignInWithPassword(t *testing.T) {
	var token string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secreto" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  token,
			"refresh_token": "refresh-1",
			"expires_in":    3600,
			"user":          map[string]string{"id": "u1", "email": body["email"]},
		})
	})

	c, sessions, rec := newIdentity(t, mux)
	token = signToken(t, "u1", "ana@payki.pe", testNow.Add(time.Hour))

	_, err := c.SignInWithPassword(context.Background(), "ana@payki.pe", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid login credentials: status: 400", errorWithDetails(err))
	code, _ := pkgerrors.CodeOf(err)
	assert.Equal(t, pkgerrors.ErrUnauthorized, code)

	session, err := c.SignInWithPassword(context.Background(), "ana@payki.pe", "secreto")
	require.NoError(t, err)
	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, "ana@payki.pe", session.Email)
	assert.Equal(t, testNow.Add(time.Hour), session.ExpiresAt)

	stored, err := sessions.Load()
	require.NoError(t, err)
	assert.Equal(t, session.AccessToken, stored.AccessToken)
	assert.Equal(t, []domain.AuthEvent{domain.EventSignedIn}, rec.all())
}

func errorWithDetails(err error) string {
	if e, ok := err.(*pkgerrors.Error); ok {
		return e.Message + ": " + e.Details
	}
	return err.Error()
}

func TestIdentity_GetSessionWithoutStoredSession(t *testing.T) {
	c, _, rec := newIdentity(t, http.NotFoundHandler())

	session, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.Empty(t, rec.all())
}

func TestIdentity_GetSessionValidToken(t *testing.T) {
	c, sessions, rec := newIdentity(t, http.NotFoundHandler())
	require.NoError(t, sessions.Save(&domain.Session{
		UserID: "u1", AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow.Add(time.Hour),
	}))

	session, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", session.AccessToken)
	assert.Empty(t, rec.all())
}

func TestIdentity_GetSessionRefreshesExpiringToken(t *testing.T) {
	var refreshed string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "r1", body["refresh_token"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  refreshed,
			"refresh_token": "r2",
		})
	})

	c, sessions, rec := newIdentity(t, mux)
	refreshed = signToken(t, "u1", "ana@payki.pe", testNow.Add(time.Hour))
	require.NoError(t, sessions.Save(&domain.Session{
		UserID: "u1", AccessToken: "old", RefreshToken: "r1", ExpiresAt: testNow.Add(30 * time.Second),
	}))

	session, err := c.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, refreshed, session.AccessToken)
	assert.Equal(t, "r2", session.RefreshToken)
	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, "ana@payki.pe", session.Email)
	assert.Equal(t, []domain.AuthEvent{domain.EventTokenRefreshed}, rec.all())

	token, err := c.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refreshed, token)
}

func TestIdentity_GetSessionRejectedRefreshSignsOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Refresh Token Not Found"}`))
	})

	c, sessions, rec := newIdentity(t, mux)
	require.NoError(t, sessions.Save(&domain.Session{
		UserID: "u1", AccessToken: "old", RefreshToken: "gone", ExpiresAt: testNow.Add(-time.Minute),
	}))

	session, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.Equal(t, []domain.AuthEvent{domain.EventSignedOut}, rec.all())

	stored, err := sessions.Load()
	require.NoError(t, err)
	assert.Nil(t, stored)

	_, err = c.AccessToken(context.Background())
	code, _ := pkgerrors.CodeOf(err)
	assert.Equal(t, pkgerrors.ErrUnauthorized, code)
}

func TestIdentity_GetSessionRefreshServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	c, sessions, _ := newIdentity(t, mux)

	// Токен еще действует: возвращается текущая сессия
	require.NoError(t, sessions.Save(&domain.Session{
		UserID: "u1", AccessToken: "still-valid", RefreshToken: "r", ExpiresAt: testNow.Add(30 * time.Second),
	}))
	session, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "still-valid", session.AccessToken)

	// Токен истек: ответ сервера 5xx не считается сетевым сбоем
	require.NoError(t, sessions.Save(&domain.Session{
		UserID: "u1", AccessToken: "expired", RefreshToken: "r", ExpiresAt: testNow.Add(-time.Minute),
	}))
	_, err = c.GetSession(context.Background())
	code, _ := pkgerrors.CodeOf(err)
	assert.Equal(t, pkgerrors.ErrInternal, code)
}

func TestIdentity_SignOut(t *testing.T) {
	var gotScope, gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		gotScope = r.URL.Query().Get("scope")
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})

	c, sessions, rec := newIdentity(t, mux)
	require.NoError(t, sessions.Save(&domain.Session{UserID: "u1", AccessToken: "tok", ExpiresAt: testNow.Add(time.Hour)}))

	require.NoError(t, c.SignOut(context.Background(), "global"))
	assert.Equal(t, "global", gotScope)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, []domain.AuthEvent{domain.EventSignedOut}, rec.all())

	stored, err := sessions.Load()
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestIdentity_SignOutRemoteFailureStillClears(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	c, sessions, _ := newIdentity(t, mux)
	require.NoError(t, sessions.Save(&domain.Session{UserID: "u1", AccessToken: "tok", ExpiresAt: testNow.Add(time.Hour)}))

	err := c.SignOut(context.Background(), "global")
	require.Error(t, err)

	stored, loadErr := sessions.Load()
	require.NoError(t, loadErr)
	assert.Nil(t, stored)
}

func TestIdentity_HealthUnreachable(t *testing.T) {
	sessions, err := store.NewSessionStore(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)

	c := NewIdentityClient("http://127.0.0.1:1", "anon", sessions, logger.NewNopLogger())
	err = c.Health(context.Background())
	code, _ := pkgerrors.CodeOf(err)
	assert.Equal(t, pkgerrors.ErrUnavailable, code)
}

func TestParseClaims(t *testing.T) {
	token := signToken(t, "u9", "x@payki.pe", testNow.Add(time.Hour))

	claims, err := ParseClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "u9", claims.Subject)
	assert.Equal(t, "x@payki.pe", claims.Email)

	_, err = ParseClaims("not-a-jwt")
	assert.Error(t, err)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()
	calls := 0
	unsubscribe := bus.OnSessionChange(func(domain.AuthEvent, *domain.Session) { calls++ })

	bus.Emit(domain.EventSignedIn, nil)
	unsubscribe()
	bus.Emit(domain.EventSignedOut, nil)

	assert.Equal(t, 1, calls)
}
