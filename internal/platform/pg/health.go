package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"payrecovery/internal/shared"
	"payrecovery/pkg/retry"
)

// WaitOptions задает, как долго ждать доступности БД при старте.
type WaitOptions struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	PingTimeout     time.Duration
}

// DefaultWaitOptions возвращает опции ожидания по умолчанию.
func DefaultWaitOptions() WaitOptions {
	return WaitOptions{
		MaxAttempts:     10,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		PingTimeout:     5 * time.Second,
	}
}

// WaitForDB ждет доступности БД с экспоненциальной задержкой между попытками.
func WaitForDB(ctx context.Context, dsn string, opts WaitOptions) error {
	cfg := retry.Config{
		MaxAttempts:  opts.MaxAttempts,
		InitialDelay: opts.InitialInterval,
		MaxDelay:     opts.MaxInterval,
		Multiplier:   2,
	}
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		return pingDatabase(ctx, dsn, opts.PingTimeout)
	}, func(error) bool { return true })
	if err != nil {
		return shared.MarkKind(fmt.Errorf("database not available: %w", err), shared.KindDependencyFailure)
	}
	return nil
}

// HealthCheckPool проверяет существующий пул простым запросом.
func HealthCheckPool(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("simple query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected query result: got %d, want 1", result)
	}
	return nil
}

// pingDatabase пингует БД через временный пул.
func pingDatabase(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
