package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/services/session-sync/internal/domain"
)

type staticToken string

func (t staticToken) AccessToken(context.Context) (string, error) {
	if t == "" {
		return "", pkgerrors.New(pkgerrors.ErrUnauthorized, "Inicia sesión.")
	}
	return string(t), nil
}

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "anon", staticToken("tok"), 5*time.Second)
}

func TestProfileRepository_GetByID(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/profiles", r.URL.Path)
		assert.Equal(t, "eq.u1", r.URL.Query().Get("id"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[{"id":"u1","full_name":"Ana","role":"passenger","balance":12.5}]`))
	})

	p, err := NewProfileRepository(client).GetByID(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Ana", p.FullName)
	assert.Equal(t, domain.RolePassenger, p.Role)
	require.NotNil(t, p.Balance)
	assert.Equal(t, 12.5, *p.Balance)
}

func TestProfileRepository_GetByIDMissing(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	p, err := NewProfileRepository(client).GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestProfileRepository_EnsureProfile(t *testing.T) {
	for name, payload := range map[string]string{
		"object": `{"id":"u1","full_name":"","role":"passenger"}`,
		"array":  `[{"id":"u1","full_name":"","role":"passenger"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/rest/v1/rpc/ensure_profile", r.URL.Path)

				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, map[string]string{"p_id": "u1", "p_email": "a@x"}, body)

				_, _ = w.Write([]byte(payload))
			})

			p, err := NewProfileRepository(client).EnsureProfile(context.Background(), "u1", "a@x")
			require.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, "u1", p.ID)
		})
	}
}

func TestProfileRepository_EnsureProfileEmpty(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	p, err := NewProfileRepository(client).EnsureProfile(context.Background(), "u1", "a@x")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		code    pkgerrors.ErrorCode
		message string
	}{
		{"postgrest message", http.StatusForbidden, `{"message":"permission denied for table profiles","code":"42501"}`, pkgerrors.ErrForbidden, "permission denied for table profiles"},
		{"expired token", http.StatusUnauthorized, `{"message":"JWT expired"}`, pkgerrors.ErrUnauthorized, "JWT expired"},
		{"gateway", http.StatusBadGateway, ``, pkgerrors.ErrInternal, "Bad Gateway"},
		{"server error", http.StatusInternalServerError, `{"message":"relation \"profiles\" does not exist"}`, pkgerrors.ErrInternal, `relation "profiles" does not exist`},
		{"plain text", http.StatusBadRequest, `boom`, pkgerrors.ErrInternal, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := NewProfileRepository(client).GetByID(context.Background(), "u1")
			require.Error(t, err)
			code, _ := pkgerrors.CodeOf(err)
			assert.Equal(t, tt.code, code)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestClient_NoToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent without a token")
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "anon", staticToken(""), time.Second)
	_, err := NewProfileRepository(client).GetByID(context.Background(), "u1")
	code, _ := pkgerrors.CodeOf(err)
	assert.Equal(t, pkgerrors.ErrUnauthorized, code)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, "anon", staticToken("tok"), time.Second)
	_, err := NewProfileRepository(client).GetByID(context.Background(), "u1")
	code, _ := pkgerrors.CodeOf(err)
	assert.Equal(t, pkgerrors.ErrUnavailable, code)
}

func TestPushSubscriptionRepository(t *testing.T) {
	var calls []string
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.RawQuery)
		if r.Method == http.MethodPost {
			assert.Equal(t, "resolution=merge-duplicates,return=minimal", r.Header.Get("Prefer"))

			var rows []domain.PushSubscription
			require.NoError(t, json.NewDecoder(r.Body).Decode(&rows))
			require.Len(t, rows, 1)
			assert.Equal(t, "https://push.example/1", rows[0].Endpoint)
			assert.Equal(t, "u1", rows[0].UserID)
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	repo := NewPushSubscriptionRepository(client)
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, &domain.PushSubscription{Endpoint: "https://push.example/1", UserID: "u1", P256dh: "k", Auth: "a"}))
	require.NoError(t, repo.DeleteByUserID(ctx, "u1"))
	require.NoError(t, repo.DeleteByEndpoint(ctx, "https://push.example/1"))

	assert.Equal(t, []string{
		"POST on_conflict=endpoint",
		"DELETE user_id=eq.u1",
		"DELETE endpoint=eq.https%3A%2F%2Fpush.example%2F1",
	}, calls)
}

func TestActivityRepository(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/profiles":
			_, _ = w.Write([]byte(`[{"balance":null}]`))
		case "/rest/v1/transactions":
			q := r.URL.Query()
			assert.Equal(t, "eq.u1", q.Get("passenger_id"))
			assert.Equal(t, "in.(ride,topup)", q.Get("type"))
			assert.Equal(t, "ts.desc", q.Get("order"))
			assert.Equal(t, "15", q.Get("limit"))
			_, _ = w.Write([]byte(`[{"id":"t1","type":"ride","amount":-1.5,"ts":"2025-03-05T13:15:00Z","meta":{"fare_code":"troncal"}}]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	repo := NewActivityRepository(client)
	balance, err := repo.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, balance)

	txs, err := repo.RecentTransactions(context.Background(), "u1", 15)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionRide, txs[0].Type)
	assert.Equal(t, "troncal", txs[0].Meta["fare_code"])
}
