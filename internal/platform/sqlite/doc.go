// Package sqlite открывает SQLite базы (драйвер modernc.org/sqlite, без cgo)
// и применяет к ним встроенные миграции golang-migrate.
//
//	db, err := sqlite.NewDB(ctx, "data/archive.db")
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	if err := sqlite.ApplyMigrationsFromFS("data/archive.db", migrations, "migrations/sqlite"); err != nil {
//		return err
//	}
//
//	err = sqlite.WithinTx(ctx, db, func(q sqlite.Querier) error {
//		_, err := q.ExecContext(ctx, "INSERT INTO t (v) VALUES (?)", 1)
//		return err
//	})
//
// WithinTx повторяет транзакцию при SQLITE_BUSY. По умолчанию транзакции
// открываются в режиме IMMEDIATE.
package sqlite
