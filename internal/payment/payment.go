package payment

import (
	"context"
	"time"

	"payrecovery/internal/recovery"
)

// Status is the lifecycle state of a failed payment.
type Status string

const (
	StatusFailed    Status = "failed"
	StatusScheduled Status = "scheduled"
	StatusRetrying  Status = "retrying"
	StatusRecovered Status = "recovered"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether no further attempts can happen in this state.
func (s Status) Terminal() bool {
	return s == StatusRecovered || s == StatusAbandoned
}

var transitions = map[Status][]Status{
	StatusFailed:    {StatusScheduled, StatusAbandoned},
	StatusScheduled: {StatusRetrying, StatusAbandoned},
	StatusRetrying:  {StatusScheduled, StatusRecovered, StatusAbandoned},
}

func (s Status) canMoveTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Payment is a failed recurring charge under recovery.
type Payment struct {
	ID              string    `json:"id"`
	CustomerID      string    `json:"customer_id"`
	CustomerName    string    `json:"customer_name"`
	Email           string    `json:"email"`
	AmountCents     int64     `json:"amount_cents"`
	Currency        string    `json:"currency"`
	Status          Status    `json:"status"`
	Attempts        int       `json:"attempts"`
	FailureCode     string    `json:"failure_code,omitempty"`
	LastFailureCode string    `json:"last_failure_code,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastAttemptAt   time.Time `json:"last_attempt_at,omitzero"`
	RecoveredAt     time.Time `json:"recovered_at,omitzero"`
	NextRetryAt     time.Time `json:"next_retry_at,omitzero"`
}

// Stats aggregates recovery results across the ledger.
type Stats struct {
	TotalFailed           int     `json:"total_failed"`
	TotalRecovered        int     `json:"total_recovered"`
	TotalAbandoned        int     `json:"total_abandoned"`
	RevenueLostCents      int64   `json:"revenue_lost_cents"`
	RevenueRecoveredCents int64   `json:"revenue_recovered_cents"`
	RecoveryRate          float64 `json:"recovery_rate"`
}

// ROI is recovered revenue as a percentage of lost revenue.
func (s Stats) ROI() float64 {
	if s.RevenueLostCents == 0 {
		return 0
	}
	return float64(s.RevenueRecoveredCents) / float64(s.RevenueLostCents) * 100
}

// ChargeRequest asks the gateway to collect a payment again.
type ChargeRequest struct {
	PaymentID   string
	CustomerID  string
	AmountCents int64
	Currency    string
	Attempt     int
}

// ChargeResult is the gateway's answer. A decline is a result, not an error.
type ChargeResult struct {
	Success       bool
	FailureCode   string
	TransactionID string
}

// Charger re-attempts a charge. Returned errors are transport problems.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// Notification templates.
const (
	TemplatePaymentFailed   = "payment_failed"
	TemplateRetryScheduled  = "retry_scheduled"
	TemplateRecoverySuccess = "recovery_success"
	TemplateFinalNotice     = "final_notice"
)

// Notification is a customer-facing message about a payment.
type Notification struct {
	Template     string
	To           string
	CustomerName string
	PaymentID    string
	AmountCents  int64
	Currency     string
	Message      string
	NextRetryAt  time.Time
}

// Notifier delivers customer notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Scheduler is the part of recovery.Scheduler this package drives.
type Scheduler interface {
	ScheduleRetry(paymentID string, attemptIndex int, failureCode string) (recovery.AttemptRecord, bool, error)
	RecordRecovery(rec recovery.AttemptRecord)
}

// OutcomeRecorder observes payments entering failed, recovered or abandoned state.
type OutcomeRecorder interface {
	PaymentOutcome(status Status)
}

type noopOutcomes struct{}

func (noopOutcomes) PaymentOutcome(Status) {}

func notificationFor(p Payment, template, message string) Notification {
	return Notification{
		Template:     template,
		To:           p.Email,
		CustomerName: p.CustomerName,
		PaymentID:    p.ID,
		AmountCents:  p.AmountCents,
		Currency:     p.Currency,
		Message:      message,
		NextRetryAt:  p.NextRetryAt,
	}
}
