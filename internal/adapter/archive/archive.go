// Package archive keeps pruned, completed retry records for audit. It is write-only
// from the service's point of view; nothing is read back into the schedule queue.
package archive

import (
	"context"
	"embed"
	"log/slog"

	"payrecovery/internal/recovery"
	"payrecovery/internal/shared"
)

//go:embed migrations
var migrations embed.FS

// Store persists completed attempt records.
type Store interface {
	// Save stores recs and returns how many were new. Saving a record twice is a no-op.
	Save(ctx context.Context, recs []recovery.AttemptRecord) (int, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Nop logs records instead of storing them.
type Nop struct {
	logger *slog.Logger
}

func NewNop(logger *slog.Logger) *Nop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Nop{logger: logger.With("component", "archive")}
}

func (n *Nop) Save(ctx context.Context, recs []recovery.AttemptRecord) (int, error) {
	for _, rec := range recs {
		n.logger.DebugContext(ctx, "attempt dropped from retention",
			"id", rec.ID, "payment_id", rec.PaymentID, "attempt", rec.AttemptNumber, "completed_at", rec.CompletedAt)
	}
	return 0, nil
}

func (n *Nop) Count(context.Context) (int, error) { return 0, nil }

func (n *Nop) Close() error { return nil }

// Drivers accepted by Open.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns the store for driver. path is used by sqlite, dsn by postgres.
func Open(ctx context.Context, driver, path, dsn string, logger *slog.Logger) (Store, error) {
	switch driver {
	case DriverNone, "":
		return NewNop(logger), nil
	case DriverSQLite:
		return OpenSQLite(ctx, path)
	case DriverPostgres:
		return OpenPostgres(ctx, dsn)
	default:
		return nil, shared.Validationf("unknown archive driver %q", driver)
	}
}
