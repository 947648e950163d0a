package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaykiPlatform/pkg/database"
	"PaykiPlatform/services/session-sync/internal/domain"
)

const testSchema = `
CREATE TABLE profiles (
	id text PRIMARY KEY,
	full_name text,
	role text NOT NULL DEFAULT 'passenger',
	passenger_sector text,
	benefit text,
	balance numeric
);

CREATE TABLE push_subscriptions (
	endpoint text PRIMARY KEY,
	user_id text NOT NULL,
	p256dh text NOT NULL,
	auth text NOT NULL,
	user_agent text,
	created_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE transactions (
	id text PRIMARY KEY,
	passenger_id text NOT NULL,
	type text NOT NULL,
	amount numeric NOT NULL,
	ts timestamptz NOT NULL,
	meta jsonb
);

CREATE FUNCTION ensure_profile(p_id text, p_email text) RETURNS SETOF profiles AS $$
	INSERT INTO profiles (id, full_name) VALUES (p_id, split_part(p_email, '@', 1))
	ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
	RETURNING *;
$$ LANGUAGE sql;
`

// connectTestDB подключается к PAYKI_TEST_DATABASE_URL одним соединением
// и создает отдельную схему, которая удаляется после теста
func connectTestDB(t *testing.T) *database.Postgres {
	t.Helper()

	url := os.Getenv("PAYKI_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PAYKI_TEST_DATABASE_URL is not set")
	}

	cfg := database.NewConfig()
	cfg.URL = url
	cfg.MaxConns = 1
	cfg.MinConns = 1
	cfg.MaxRetries = 0

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	t.Cleanup(db.Close)

	schema := "payki_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = db.Pool.Exec(ctx, "CREATE SCHEMA "+schema+"; SET search_path TO "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
	})

	_, err = db.Pool.Exec(ctx, testSchema)
	require.NoError(t, err)
	return db
}

func TestProfileRepository(t *testing.T) {
	db := connectTestDB(t)
	ctx := context.Background()
	repo := NewProfileRepository(db.Pool)

	profile, err := repo.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, profile)

	_, err = db.Pool.Exec(ctx, `INSERT INTO profiles VALUES ('u1', 'Ana Quispe', 'passenger', 'estado', 'student', 12.5)`)
	require.NoError(t, err)

	profile, err = repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, domain.RolePassenger, profile.Role)
	assert.Equal(t, domain.SectorEstado, *profile.PassengerSector)
	assert.Equal(t, domain.BenefitStudent, *profile.Benefit)
	assert.Equal(t, 12.5, *profile.Balance)

	ensured, err := repo.EnsureProfile(ctx, "u2", "luis@payki.pe")
	require.NoError(t, err)
	require.NotNil(t, ensured)
	assert.Equal(t, "luis", ensured.FullName)
	assert.Nil(t, ensured.Balance)
}

func TestPushSubscriptionRepository(t *testing.T) {
	db := connectTestDB(t)
	ctx := context.Background()
	repo := NewPushSubscriptionRepository(db.Pool)

	sub := &domain.PushSubscription{Endpoint: "https://push.example/1", UserID: "u1", P256dh: "k1", Auth: "a1", CreatedAt: time.Now()}
	require.NoError(t, repo.Upsert(ctx, sub))

	sub.P256dh = "k2"
	require.NoError(t, repo.Upsert(ctx, sub))

	var count int
	var key string
	require.NoError(t, db.Pool.QueryRow(ctx, `SELECT count(*), max(p256dh) FROM push_subscriptions`).Scan(&count, &key))
	assert.Equal(t, 1, count)
	assert.Equal(t, "k2", key)

	require.NoError(t, repo.Upsert(ctx, &domain.PushSubscription{Endpoint: "https://push.example/2", UserID: "u1", P256dh: "k", Auth: "a", CreatedAt: time.Now()}))
	require.NoError(t, repo.DeleteByEndpoint(ctx, "https://push.example/2"))
	require.NoError(t, repo.DeleteByUserID(ctx, "u1"))

	require.NoError(t, db.Pool.QueryRow(ctx, `SELECT count(*) FROM push_subscriptions`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestActivityRepository(t *testing.T) {
	db := connectTestDB(t)
	ctx := context.Background()
	repo := NewActivityRepository(db.Pool)

	balance, err := repo.GetBalance(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, balance)

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO profiles (id, balance) VALUES ('u1', 7.5);
		INSERT INTO transactions VALUES
			('t1', 'u1', 'ride', -2.5, '2025-03-05T13:00:00Z', '{"fare_code":"troncal"}'),
			('t2', 'u1', 'topup', 10, '2025-03-04T13:00:00Z', NULL),
			('t3', 'u1', 'adjustment', 1, '2025-03-06T13:00:00Z', NULL),
			('t4', 'u2', 'ride', -2.5, '2025-03-06T13:00:00Z', NULL);
	`)
	require.NoError(t, err)

	balance, err = repo.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 7.5, balance)

	txs, err := repo.RecentTransactions(ctx, "u1", 15)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "t1", txs[0].ID)
	assert.Equal(t, domain.TransactionRide, txs[0].Type)
	assert.Equal(t, "troncal", txs[0].Meta["fare_code"])
	assert.Equal(t, "t2", txs[1].ID)
}
