package payment

import (
	"context"
	"log/slog"
	"time"

	"payrecovery/internal/recovery"
	"payrecovery/internal/shared"
	"payrecovery/pkg/retry"
)

// ProcessorConfig wires a Processor. Retry defaults to retry.DefaultConfig.
type ProcessorConfig struct {
	Ledger    *Ledger
	Scheduler Scheduler
	Charger   Charger
	Notifier  Notifier
	Catalog   *recovery.StrategyCatalog
	Outcomes  OutcomeRecorder
	Retry     retry.Config
	Logger    *slog.Logger
	Now       func() time.Time
}

// Processor executes due retries. Its Handle method is the scheduler's default handler.
type Processor struct {
	ledger    *Ledger
	scheduler Scheduler
	charger   Charger
	notifier  Notifier
	catalog   *recovery.StrategyCatalog
	outcomes  OutcomeRecorder
	retry     retry.Config
	logger    *slog.Logger
	now       func() time.Time
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	p := &Processor{
		ledger:    cfg.Ledger,
		scheduler: cfg.Scheduler,
		charger:   cfg.Charger,
		notifier:  cfg.Notifier,
		catalog:   cfg.Catalog,
		outcomes:  cfg.Outcomes,
		retry:     cfg.Retry,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if p.catalog == nil {
		p.catalog = recovery.DefaultCatalog()
	}
	if p.outcomes == nil {
		p.outcomes = noopOutcomes{}
	}
	if p.retry.MaxAttempts == 0 {
		p.retry = retry.DefaultConfig()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "payment_processor")
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// SetScheduler sets the scheduler after construction. The scheduler takes Handle as
// its default handler, so the two reference each other.
func (p *Processor) SetScheduler(s Scheduler) {
	p.scheduler = s
}

// Handle re-charges the payment behind rec. A decline schedules the next attempt under
// the payment's original failure policy, or abandons it when the policy is exhausted.
// Unknown and already settled payments are skipped.
func (p *Processor) Handle(ctx context.Context, rec recovery.AttemptRecord) error {
	pay, err := p.ledger.Get(rec.PaymentID)
	if shared.IsNotFound(err) {
		p.logger.Warn("retry for unknown payment skipped", "payment_id", rec.PaymentID)
		return nil
	}
	if err != nil {
		return err
	}
	if pay.Status.Terminal() {
		p.logger.Info("retry for settled payment skipped", "payment_id", pay.ID, "status", pay.Status)
		return nil
	}

	if pay, err = p.ledger.MarkRetrying(pay.ID, p.now()); err != nil {
		return err
	}

	res, chargeErr := p.charge(ctx, pay, rec.AttemptNumber)
	if chargeErr != nil {
		p.logger.Error("gateway unavailable", "payment_id", pay.ID, "attempt", rec.AttemptNumber, "error", chargeErr)
		res = ChargeResult{FailureCode: recovery.CodeProcessingError}
	}

	if res.Success {
		pay, err = p.ledger.MarkRecovered(pay.ID, p.now())
		if err != nil {
			return err
		}
		p.scheduler.RecordRecovery(rec)
		p.outcomes.PaymentOutcome(StatusRecovered)
		p.logger.Info("payment recovered",
			"payment_id", pay.ID, "attempt", rec.AttemptNumber, "transaction_id", res.TransactionID)
		p.send(ctx, notificationFor(pay, TemplateRecoverySuccess, ""))
		return nil
	}

	if _, err = p.ledger.RecordDecline(pay.ID, res.FailureCode, rec.AttemptNumber, p.now()); err != nil {
		return err
	}
	next, ok, err := p.scheduler.ScheduleRetry(pay.ID, rec.AttemptNumber, pay.FailureCode)
	if err != nil {
		return shared.Wrap(err, "schedule next retry")
	}
	if !ok {
		pay, err = p.ledger.MarkAbandoned(pay.ID)
		if err != nil {
			return err
		}
		p.outcomes.PaymentOutcome(StatusAbandoned)
		p.logger.Info("payment abandoned", "payment_id", pay.ID, "attempts", pay.Attempts)
		p.send(ctx, notificationFor(pay, TemplateFinalNotice, p.catalog.Strategy(pay.FailureCode).Message))
		return chargeErr
	}

	pay, err = p.ledger.MarkScheduled(pay.ID, next.ScheduledTime)
	if err != nil {
		return err
	}
	p.logger.Info("retry declined",
		"payment_id", pay.ID, "attempt", rec.AttemptNumber, "decline_code", res.FailureCode, "next_retry_at", next.ScheduledTime)
	p.send(ctx, notificationFor(pay, TemplateRetryScheduled, p.catalog.Strategy(res.FailureCode).Message))
	return chargeErr
}

func (p *Processor) charge(ctx context.Context, pay Payment, attempt int) (ChargeResult, error) {
	req := ChargeRequest{
		PaymentID:   pay.ID,
		CustomerID:  pay.CustomerID,
		AmountCents: pay.AmountCents,
		Currency:    pay.Currency,
		Attempt:     attempt,
	}
	cfg := p.retry
	cfg.OnRetry = func(n int, err error, delay time.Duration) {
		p.logger.Warn("gateway call failed, retrying", "payment_id", pay.ID, "try", n, "delay", delay, "error", err)
	}
	res, err := retry.DoValue(ctx, cfg, func(ctx context.Context) (ChargeResult, error) {
		return p.charger.Charge(ctx, req)
	}, isTransient)
	if err != nil {
		return ChargeResult{}, shared.MarkKind(shared.Wrap(err, "charge payment"), shared.KindDependencyFailure)
	}
	return res, nil
}

func isTransient(err error) bool {
	return shared.IsDependencyFailure(err) || shared.IsTimeout(err)
}

func (p *Processor) send(ctx context.Context, n Notification) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, n); err != nil {
		p.logger.Warn("notification failed", "template", n.Template, "payment_id", n.PaymentID, "error", err)
	}
}
