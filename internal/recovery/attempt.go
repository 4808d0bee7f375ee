package recovery

import (
	"context"
	"time"
)

// AttemptRecord describes one scheduled retry of a failed payment.
type AttemptRecord struct {
	ID            string    `json:"id"`
	PaymentID     string    `json:"payment_id"`
	AttemptNumber int       `json:"attempt"`
	FailureCode   string    `json:"failure_code,omitempty"`
	ScheduledTime time.Time `json:"scheduled_for"`
	CreatedAt     time.Time `json:"created_at"`
	Completed     bool      `json:"completed"`
	CompletedAt   time.Time `json:"completed_at,omitzero"`
}

// Due reports whether the record is pending and its scheduled time has passed.
func (r AttemptRecord) Due(now time.Time) bool {
	return !r.Completed && !r.ScheduledTime.After(now)
}

// Handler processes a due retry. It runs on the dispatch goroutine with no scheduler
// lock held, so it may call back into the Scheduler.
type Handler func(ctx context.Context, rec AttemptRecord) error

// Hooks are optional observability callbacks. They are invoked synchronously and
// must not block.
type Hooks struct {
	OnScheduled  func(rec AttemptRecord)
	OnExhausted  func(paymentID string, attemptIndex int, failureCode string)
	OnDispatched func(rec AttemptRecord, duration time.Duration, err error)
}
