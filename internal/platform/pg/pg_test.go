package pg

import (
	"context"
	"os"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payrecovery/internal/shared"
)

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	return dsn
}

func TestDefaultPoolOptions(t *testing.T) {
	opts := DefaultPoolOptions()
	assert.Equal(t, int32(4), opts.MaxConns)
	assert.Equal(t, 5*time.Second, opts.PingTimeout)
}

func TestNewPool_InvalidDSN(t *testing.T) {
	_, err := NewPool(context.Background(), "postgres://%zz")
	assert.Error(t, err)
}

func TestApplyMigrationsFromFS_MissingDir(t *testing.T) {
	fsys := fstest.MapFS{"other/1_init.up.sql": {Data: []byte("SELECT 1;")}}
	_, err := ApplyMigrationsFromFS("postgres://localhost:1/x?sslmode=disable", fsys, "migrations")
	assert.Error(t, err)
}

func TestWaitForDB_GivesUp(t *testing.T) {
	opts := WaitOptions{
		MaxAttempts:     2,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		PingTimeout:     100 * time.Millisecond,
	}
	err := WaitForDB(context.Background(), "postgres://nobody@127.0.0.1:1/none?sslmode=disable", opts)
	require.Error(t, err)
	assert.True(t, shared.IsDependencyFailure(err))
}

func TestPool_Integration(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()

	require.NoError(t, WaitForDB(ctx, dsn, DefaultWaitOptions()))
	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, HealthCheckPool(ctx, pool))

	err = WithinTx(ctx, pool, func(tx pgx.Tx) error {
		var n int
		return tx.QueryRow(ctx, "SELECT 2").Scan(&n)
	})
	require.NoError(t, err)
}
