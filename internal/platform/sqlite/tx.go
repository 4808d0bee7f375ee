package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"payrecovery/pkg/retry"
)

// Querier объединяет методы выполнения запросов, общие для БД и транзакции.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// busyRetry - ретраи всей транзакции, если SQLite занят другим писателем.
var busyRetry = retry.Config{
	MaxAttempts:  3,
	InitialDelay: 10 * time.Millisecond,
	MaxDelay:     500 * time.Millisecond,
	Multiplier:   2.0,
	Jitter:       true,
}

// WithinTx выполняет fn в транзакции: коммит при nil, откат при ошибке.
// При SQLITE_BUSY транзакция повторяется целиком.
func WithinTx(ctx context.Context, db *sql.DB, fn func(q Querier) error) error {
	return retry.Do(ctx, busyRetry, func(ctx context.Context) error {
		return runTx(ctx, db, fn)
	}, IsBusyError)
}

func runTx(ctx context.Context, db *sql.DB, fn func(q Querier) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsBusyError проверяет, является ли ошибка SQLITE_BUSY или блокировкой таблицы.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "SQLITE_BUSY") ||
		strings.Contains(errStr, "database table is locked")
}
