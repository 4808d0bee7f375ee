package pg

import (
	"errors"
	"fmt"
	"io/fs"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationInfo содержит информацию о результате применения миграций.
type MigrationInfo struct {
	Applied        bool // Были ли применены новые миграции
	CurrentVersion uint // Версия до применения
	FinalVersion   uint // Версия после применения
}

// ApplyMigrationsFromFS применяет миграции, встроенные в бинарник через embed.FS.
// Повторный вызов безопасен: migrate.ErrNoChange не считается ошибкой.
func ApplyMigrationsFromFS(dsn string, fsys fs.FS, dirName string) (MigrationInfo, error) {
	sourceDriver, err := iofs.New(fsys, dirName)
	if err != nil {
		return MigrationInfo{}, fmt.Errorf("failed to create iofs source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return MigrationInfo{}, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	var info MigrationInfo
	currentVersion, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationInfo{}, fmt.Errorf("failed to get current version: %w", err)
	}
	info.CurrentVersion = currentVersion
	info.FinalVersion = currentVersion
	if dirty {
		return info, fmt.Errorf("database is in dirty state at version %d", currentVersion)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return info, nil
		}
		return info, fmt.Errorf("failed to apply migrations: %w", err)
	}

	info.Applied = true
	if finalVersion, _, err := m.Version(); err == nil {
		info.FinalVersion = finalVersion
	}
	return info, nil
}
