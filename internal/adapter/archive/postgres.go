package archive

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payrecovery/internal/platform/pg"
	"payrecovery/internal/recovery"
	"payrecovery/internal/shared"
)

const insertPostgres = `INSERT INTO attempt_archive
	(id, payment_id, attempt_number, failure_code, scheduled_time, created_at, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING`

// Postgres archives records into PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres waits for the database, applies migrations and opens a pool.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if err := pg.WaitForDB(ctx, dsn, pg.DefaultWaitOptions()); err != nil {
		return nil, err
	}
	if _, err := pg.ApplyMigrationsFromFS(dsn, migrations, "migrations/postgres"); err != nil {
		return nil, shared.Wrap(err, "migrate postgres archive")
	}
	pool, err := pg.NewPool(ctx, dsn)
	if err != nil {
		return nil, shared.MarkKind(shared.Wrap(err, "open postgres archive"), shared.KindDependencyFailure)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Save(ctx context.Context, recs []recovery.AttemptRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	var inserted int
	err := pg.WithinTx(ctx, p.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range recs {
			batch.Queue(insertPostgres,
				rec.ID, rec.PaymentID, rec.AttemptNumber, rec.FailureCode,
				rec.ScheduledTime, rec.CreatedAt, rec.CompletedAt)
		}
		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for range recs {
			tag, err := results.Exec()
			if err != nil {
				return err
			}
			inserted += int(tag.RowsAffected())
		}
		return results.Close()
	})
	if err != nil {
		return 0, shared.MarkKind(shared.Wrap(err, "archive records"), shared.KindDependencyFailure)
	}
	return inserted, nil
}

func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM attempt_archive").Scan(&n); err != nil {
		return 0, shared.Wrap(err, "count archived records")
	}
	return n, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
