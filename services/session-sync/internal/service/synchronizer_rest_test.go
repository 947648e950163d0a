package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"PaykiPlatform/pkg/logger"
	"PaykiPlatform/services/session-sync/internal/domain"
	"PaykiPlatform/services/session-sync/internal/mocks"
	"PaykiPlatform/services/session-sync/internal/repository/rest"
)

type fixedToken string

func (t fixedToken) AccessToken(context.Context) (string, error) {
	return string(t), nil
}

// newRESTSynchronizer связывает синхронизатор с PostgREST, который всегда отвечает 500
func newRESTSynchronizer(t *testing.T, snapshots *memorySnapshots) *Synchronizer {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"relation \"profiles\" does not exist","code":"42P01"}`))
	}))
	t.Cleanup(srv.Close)

	identity := new(mocks.MockIdentityProvider)
	identity.On("GetSession", mock.Anything).Return(session("u1", "ana@payki.pe"), nil)

	client := rest.NewClient(srv.URL, "anon", fixedToken("tok"), time.Second)

	opts := DefaultOptions()
	opts.Now = func() time.Time { return testNow }

	s := NewSynchronizer(Dependencies{
		Identity:  identity,
		Profiles:  rest.NewProfileRepository(client),
		Snapshots: snapshots,
		Logger:    logger.NewNopLogger(),
	}, opts)
	t.Cleanup(s.Close)
	return s
}

func TestBootstrap_ServerErrorIsResolutionFailure(t *testing.T) {
	s := newRESTSynchronizer(t, newMemorySnapshots())

	s.Bootstrap(context.Background())

	state := s.State()
	assert.Nil(t, state.Profile)
	assert.Equal(t, domain.ErrorClassResolution, state.ErrorClass)
	assert.Contains(t, state.Error, `relation "profiles" does not exist`)
	assert.False(t, state.Loading)
}

func TestBootstrap_ServerErrorNotHiddenByFreshSnapshot(t *testing.T) {
	snapshots := newMemorySnapshots()
	snapshots.put(passenger("u1"), testNow.Add(-time.Hour))
	s := newRESTSynchronizer(t, snapshots)

	s.Bootstrap(context.Background())

	state := s.State()
	assert.Nil(t, state.Profile)
	assert.Equal(t, domain.ErrorClassResolution, state.ErrorClass)
	require.NotEmpty(t, state.Error)
	assert.NotEqual(t, "Sin conexión. Intenta nuevamente.", state.Error)
}
