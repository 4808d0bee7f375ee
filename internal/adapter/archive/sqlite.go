package archive

import (
	"context"
	"database/sql"
	"time"

	"payrecovery/internal/platform/sqlite"
	"payrecovery/internal/recovery"
	"payrecovery/internal/shared"
)

const insertSQLite = `INSERT INTO attempt_archive
	(id, payment_id, attempt_number, failure_code, scheduled_time, created_at, completed_at, archived_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO NOTHING`

// SQLite archives records into a local SQLite file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite migrates and opens the archive at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if err := sqlite.ApplyMigrationsFromFS(path, migrations, "migrations/sqlite"); err != nil {
		return nil, shared.Wrap(err, "migrate sqlite archive")
	}
	db, err := sqlite.NewDB(ctx, path)
	if err != nil {
		return nil, shared.Wrap(err, "open sqlite archive")
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Save(ctx context.Context, recs []recovery.AttemptRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	archivedAt := formatTime(s.now())
	var inserted int
	err := sqlite.WithinTx(ctx, s.db, func(q sqlite.Querier) error {
		inserted = 0
		stmt, err := q.PrepareContext(ctx, insertSQLite)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, rec := range recs {
			res, err := stmt.ExecContext(ctx,
				rec.ID, rec.PaymentID, rec.AttemptNumber, rec.FailureCode,
				formatTime(rec.ScheduledTime), formatTime(rec.CreatedAt), formatTime(rec.CompletedAt), archivedAt)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, shared.MarkKind(shared.Wrap(err, "archive records"), shared.KindDependencyFailure)
	}
	return inserted, nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attempt_archive").Scan(&n); err != nil {
		return 0, shared.Wrap(err, "count archived records")
	}
	return n, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
