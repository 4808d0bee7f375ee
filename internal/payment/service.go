package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"payrecovery/internal/recovery"
	"payrecovery/internal/shared"
)

var validate = validator.New()

// FailureReport describes a payment the gateway reported as failed.
type FailureReport struct {
	PaymentID    string `json:"payment_id" validate:"required,max=128"`
	CustomerID   string `json:"customer_id" validate:"required,max=128"`
	CustomerName string `json:"customer_name" validate:"max=256"`
	Email        string `json:"email" validate:"required,email"`
	AmountCents  int64  `json:"amount_cents" validate:"gt=0"`
	Currency     string `json:"currency" validate:"omitempty,len=3,alpha"`
	FailureCode  string `json:"failure_code" validate:"omitempty,max=64"`
}

// ServiceConfig wires a Service. Catalog, Logger, Outcomes and Now are optional.
type ServiceConfig struct {
	Ledger    *Ledger
	Scheduler Scheduler
	Notifier  Notifier
	Catalog   *recovery.StrategyCatalog
	Outcomes  OutcomeRecorder
	Logger    *slog.Logger
	Now       func() time.Time
}

// Service ingests failed payments and schedules their first retry.
type Service struct {
	ledger    *Ledger
	scheduler Scheduler
	notifier  Notifier
	catalog   *recovery.StrategyCatalog
	outcomes  OutcomeRecorder
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		ledger:    cfg.Ledger,
		scheduler: cfg.Scheduler,
		notifier:  cfg.Notifier,
		catalog:   cfg.Catalog,
		outcomes:  cfg.Outcomes,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if s.catalog == nil {
		s.catalog = recovery.DefaultCatalog()
	}
	if s.outcomes == nil {
		s.outcomes = noopOutcomes{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "payment_service")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ReportFailure records a failed payment and schedules its first retry. When the
// failure code allows no retries the payment is abandoned immediately.
func (s *Service) ReportFailure(ctx context.Context, r FailureReport) (Payment, error) {
	if err := validate.Struct(r); err != nil {
		return Payment{}, shared.Validationf("%s", describeValidation(err))
	}
	currency := strings.ToLower(r.Currency)
	if currency == "" {
		currency = "usd"
	}

	p, err := s.ledger.RecordFailure(Payment{
		ID:           r.PaymentID,
		CustomerID:   r.CustomerID,
		CustomerName: r.CustomerName,
		Email:        r.Email,
		AmountCents:  r.AmountCents,
		Currency:     currency,
		FailureCode:  r.FailureCode,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return Payment{}, err
	}
	s.outcomes.PaymentOutcome(StatusFailed)
	s.logger.Info("payment failed",
		"payment_id", p.ID, "amount_cents", p.AmountCents, "failure_code", p.FailureCode, "email", p.Email)

	// Scheduled before the insert: the dispatcher may pick the attempt up at once.
	if p, err = s.ledger.MarkScheduled(p.ID, time.Time{}); err != nil {
		return Payment{}, err
	}
	rec, ok, err := s.scheduler.ScheduleRetry(p.ID, 0, p.FailureCode)
	if err != nil {
		if _, abandonErr := s.ledger.MarkAbandoned(p.ID); abandonErr == nil {
			s.outcomes.PaymentOutcome(StatusAbandoned)
		}
		return Payment{}, shared.Wrap(err, "schedule first retry")
	}
	if !ok {
		p, err = s.ledger.MarkAbandoned(p.ID)
		if err != nil {
			return Payment{}, err
		}
		s.outcomes.PaymentOutcome(StatusAbandoned)
		s.send(ctx, notificationFor(p, TemplateFinalNotice, s.catalog.Strategy(p.FailureCode).Message))
		return p, nil
	}

	if p, err = s.ledger.SetFirstRetry(p.ID, rec.ScheduledTime); err != nil {
		return Payment{}, err
	}
	s.send(ctx, notificationFor(p, TemplatePaymentFailed, s.catalog.Strategy(p.FailureCode).Message))
	return p, nil
}

func (s *Service) send(ctx context.Context, n Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("notification failed", "template", n.Template, "payment_id", n.PaymentID, "error", err)
	}
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
