package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite драйвер
)

// TxLockMode определяет режим блокировки транзакций SQLite
type TxLockMode string

const (
	// TxLockDeferred - блокировка откладывается до первого чтения/записи
	TxLockDeferred TxLockMode = "deferred"
	// TxLockImmediate - RESERVED блокировка сразу, чтобы избежать SQLITE_BUSY посреди записи
	TxLockImmediate TxLockMode = "immediate"
)

// DBOptions содержит настройки для SQLite базы данных.
type DBOptions struct {
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	// PingTimeout - таймаут проверки соединения при создании БД
	PingTimeout time.Duration
	// WALMode - использовать WAL журнал
	WALMode bool
	// BusyTimeout - сколько ждать при SQLITE_BUSY
	BusyTimeout time.Duration
	TxLockMode  TxLockMode
}

// DefaultDBOptions возвращает настройки для архива: один писатель, пакетные вставки.
func DefaultDBOptions() DBOptions {
	return DBOptions{
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		MaxOpenConns:    4,
		MaxIdleConns:    1,
		PingTimeout:     5 * time.Second,
		WALMode:         true,
		BusyTimeout:     5 * time.Second,
		TxLockMode:      TxLockImmediate,
	}
}

// NewDB открывает SQLite базу с настройками по умолчанию.
func NewDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	return NewDBWithOptions(ctx, dbPath, DefaultDBOptions())
}

// NewDBWithOptions открывает SQLite базу, создавая директорию при необходимости,
// и применяет PRAGMA настройки.
func NewDBWithOptions(ctx context.Context, dbPath string, opts DBOptions) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", buildDSN(dbPath, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := applyPragmaSettings(ctx, db, opts); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply PRAGMA settings: %w", err)
	}

	return db, nil
}

// buildDSN добавляет к пути параметры драйвера modernc.
func buildDSN(dbPath string, opts DBOptions) string {
	var params []string
	if opts.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_pragma=busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	}
	if opts.TxLockMode != "" && opts.TxLockMode != TxLockDeferred {
		params = append(params, "_txlock="+string(opts.TxLockMode))
	}
	if len(params) == 0 {
		return dbPath
	}
	return dbPath + "?" + strings.Join(params, "&")
}

func applyPragmaSettings(ctx context.Context, db *sql.DB, opts DBOptions) error {
	pragmas := []string{"PRAGMA synchronous = NORMAL"}
	if opts.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}
