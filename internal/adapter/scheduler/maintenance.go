package scheduler

import (
	"context"
	"log/slog"
	"time"

	"payrecovery/internal/recovery"
)

// Pruner отдает завершенные попытки старше cutoff и удаляет их по ID.
type Pruner interface {
	Expired(cutoff time.Time) []recovery.AttemptRecord
	Forget(ids []string) int
}

// Archiver сохраняет завершенные попытки перед удалением из памяти.
type Archiver interface {
	Save(ctx context.Context, recs []recovery.AttemptRecord) (int, error)
}

// RetentionJob архивирует попытки, завершенные раньше чем period назад, и только
// после успешной записи удаляет их из очереди. При ошибке архива записи остаются
// в памяти до следующего прохода. onArchived получает число новых записей в архиве.
func RetentionJob(p Pruner, a Archiver, period time.Duration, now func() time.Time, onArchived func(int), logger *slog.Logger) JobFunc {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) error {
		expired := p.Expired(now().Add(-period))
		if len(expired) == 0 {
			return nil
		}
		n, err := a.Save(ctx, expired)
		if err != nil {
			logger.Error("archive write failed, records kept for next sweep", "count", len(expired), "error", err)
			return err
		}
		ids := make([]string, len(expired))
		for i, rec := range expired {
			ids[i] = rec.ID
		}
		pruned := p.Forget(ids)
		if onArchived != nil {
			onArchived(n)
		}
		logger.Info("retention sweep", "pruned", pruned, "archived", n)
		return nil
	}
}

// PendingGaugeJob публикует размер очереди ожидающих попыток.
func PendingGaugeJob(pending func() int, set func(int)) JobFunc {
	return func(context.Context) error {
		set(pending())
		return nil
	}
}
