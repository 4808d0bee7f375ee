package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"payrecovery/internal/shared"
)

// DefaultPollInterval bounds how long the dispatch loop idles between queue checks.
const DefaultPollInterval = 60 * time.Second

// maxHourShift is the largest adjustment, in hours, applied to reach an optimal hour.
const maxHourShift = 3

var (
	// DefaultLadder is the fixed retry ladder used when no failure code is known.
	DefaultLadder = []time.Duration{1 * time.Hour, 24 * time.Hour, 72 * time.Hour, 168 * time.Hour}
	// DefaultOptimalHours are the preferred hours of day, in priority order.
	DefaultOptimalHours = []int{10, 14, 19}
)

// Config configures a Scheduler. Zero fields take defaults.
type Config struct {
	Catalog        *StrategyCatalog
	Ladder         []time.Duration
	OptimalHours   []int
	PollInterval   time.Duration
	Location       *time.Location
	Now            func() time.Time
	NewID          func() string
	Logger         *slog.Logger
	DefaultHandler Handler
	Hooks          Hooks
}

// Scheduler computes retry due times, keeps them in a ScheduleQueue and fires them from
// a single background dispatch loop.
type Scheduler struct {
	catalog        *StrategyCatalog
	ladder         []time.Duration
	optimalHours   []int
	pollInterval   time.Duration
	loc            *time.Location
	now            func() time.Time
	newID          func() string
	logger         *slog.Logger
	defaultHandler Handler
	hooks          Hooks

	queue     *ScheduleQueue
	analytics *AnalyticsTracker

	cbMu      sync.RWMutex
	callbacks map[string]Handler

	wake      chan struct{}
	stopCh    chan struct{}
	done      chan struct{}
	stopping  atomic.Bool
	started   atomic.Bool
	running   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewScheduler creates a Scheduler. It does not start dispatching until Start.
func NewScheduler(cfg Config) *Scheduler {
	s := &Scheduler{
		catalog:        cfg.Catalog,
		ladder:         append([]time.Duration(nil), cfg.Ladder...),
		optimalHours:   append([]int(nil), cfg.OptimalHours...),
		pollInterval:   cfg.PollInterval,
		loc:            cfg.Location,
		now:            cfg.Now,
		newID:          cfg.NewID,
		logger:         cfg.Logger,
		defaultHandler: cfg.DefaultHandler,
		hooks:          cfg.Hooks,
		analytics:      NewAnalyticsTracker(),
		callbacks:      make(map[string]Handler),
		wake:           make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
		done:           make(chan struct{}),
	}
	if s.catalog == nil {
		s.catalog = DefaultCatalog()
	}
	if len(s.ladder) == 0 {
		s.ladder = append([]time.Duration(nil), DefaultLadder...)
	}
	if cfg.OptimalHours == nil {
		s.optimalHours = append([]int(nil), DefaultOptimalHours...)
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "retry_scheduler")
	if s.defaultHandler == nil {
		s.defaultHandler = s.logOnlyHandler
	}
	s.queue = NewScheduleQueue(s.now)
	return s
}

func (s *Scheduler) logOnlyHandler(_ context.Context, rec AttemptRecord) error {
	s.logger.Info("no handler registered for retry",
		"payment_id", rec.PaymentID, "attempt", rec.AttemptNumber)
	return nil
}

// ScheduleRetry schedules the attempt that follows attemptIndex completed attempts.
// With an empty failureCode the fixed ladder applies; otherwise the catalog policy for
// the code does. When retries are exhausted it returns ok == false and a nil error.
func (s *Scheduler) ScheduleRetry(paymentID string, attemptIndex int, failureCode string) (AttemptRecord, bool, error) {
	if paymentID == "" {
		return AttemptRecord{}, false, shared.Validationf("payment id is required")
	}
	if attemptIndex < 0 {
		return AttemptRecord{}, false, shared.Validationf("attempt index %d is negative", attemptIndex)
	}

	delay, ok := s.delayFor(attemptIndex, failureCode)
	if !ok {
		s.logger.Info("no further retries",
			"payment_id", paymentID, "attempt_index", attemptIndex, "failure_code", failureCode)
		if s.hooks.OnExhausted != nil {
			s.hooks.OnExhausted(paymentID, attemptIndex, failureCode)
		}
		return AttemptRecord{}, false, nil
	}

	now := s.now()
	due := now.Add(delay)
	scheduled := s.AdjustToOptimalHour(due, delay.Hours())
	if scheduled.Before(now) {
		scheduled = due
	}

	rec := AttemptRecord{
		ID:            s.newID(),
		PaymentID:     paymentID,
		AttemptNumber: attemptIndex + 1,
		FailureCode:   failureCode,
		ScheduledTime: scheduled,
		CreatedAt:     now,
	}
	s.queue.Insert(rec)
	s.notify()

	s.logger.Info("retry scheduled",
		"payment_id", paymentID, "attempt", rec.AttemptNumber, "scheduled_for", rec.ScheduledTime)
	if s.hooks.OnScheduled != nil {
		s.hooks.OnScheduled(rec)
	}
	return rec, true, nil
}

// delayFor picks exactly one backoff source: the ladder without a code, the catalog with one.
func (s *Scheduler) delayFor(attemptIndex int, failureCode string) (time.Duration, bool) {
	if failureCode == "" {
		if attemptIndex >= len(s.ladder) {
			return 0, false
		}
		return s.ladder[attemptIndex], true
	}
	if !s.catalog.ShouldRetry(failureCode, attemptIndex) {
		return 0, false
	}
	return s.catalog.NextDelay(failureCode, attemptIndex), true
}

// AdjustToOptimalHour shifts due by at most three hours onto the first optimal hour, in
// configured order, that is within reach. Retries due within an hour are never moved.
func (s *Scheduler) AdjustToOptimalHour(due time.Time, hoursUntilRetry float64) time.Time {
	if hoursUntilRetry <= 1 {
		return due
	}
	hour := due.In(s.loc).Hour()
	for _, opt := range s.optimalHours {
		diff := opt - hour
		if diff >= -maxHourShift && diff <= maxHourShift {
			return due.Add(time.Duration(diff) * time.Hour)
		}
	}
	return due
}

// RegisterCallback sets the handler for paymentID, replacing any earlier one.
// A nil handler removes the registration.
func (s *Scheduler) RegisterCallback(paymentID string, h Handler) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if h == nil {
		delete(s.callbacks, paymentID)
		return
	}
	s.callbacks[paymentID] = h
}

// UnregisterCallback removes the handler for paymentID.
func (s *Scheduler) UnregisterCallback(paymentID string) {
	s.RegisterCallback(paymentID, nil)
}

func (s *Scheduler) handlerFor(paymentID string) Handler {
	s.cbMu.RLock()
	defer s.cbMu.RUnlock()
	if h, ok := s.callbacks[paymentID]; ok {
		return h
	}
	return s.defaultHandler
}

// MarkCompleted completes the earliest pending record of paymentID.
func (s *Scheduler) MarkCompleted(paymentID string) bool {
	return s.queue.MarkCompleted(paymentID)
}

// RecordSuccess counts a successful retry at hour for analytics.
func (s *Scheduler) RecordSuccess(hour int) {
	s.analytics.RecordSuccess(hour)
}

// RecordRecovery counts rec as successful in the hour bucket it was dispatched from.
func (s *Scheduler) RecordRecovery(rec AttemptRecord) {
	s.analytics.RecordSuccess(s.HourOf(rec.ScheduledTime))
}

// HourOf returns the hour of t in the scheduler's location.
func (s *Scheduler) HourOf(t time.Time) int {
	return t.In(s.loc).Hour()
}

// Snapshot returns a copy of all retained records in due order.
func (s *Scheduler) Snapshot() []AttemptRecord {
	return s.queue.Snapshot()
}

// Analytics returns a copy of the hour-bucketed counters.
func (s *Scheduler) Analytics() Analytics {
	return s.analytics.Snapshot()
}

// Pending returns the number of records awaiting dispatch.
func (s *Scheduler) Pending() int {
	return s.queue.Pending()
}

// Prune drops completed records completed before cutoff and returns them.
func (s *Scheduler) Prune(cutoff time.Time) []AttemptRecord {
	removed := s.queue.Prune(cutoff)
	if len(removed) > 0 {
		s.logger.Info("pruned completed retries", "count", len(removed), "cutoff", cutoff)
	}
	return removed
}

// Expired returns the completed records Prune(cutoff) would drop, without dropping them.
func (s *Scheduler) Expired(cutoff time.Time) []AttemptRecord {
	return s.queue.Expired(cutoff)
}

// Forget drops the completed records with the given IDs.
func (s *Scheduler) Forget(ids []string) int {
	n := s.queue.Forget(ids)
	if n > 0 {
		s.logger.Info("pruned completed retries", "count", n)
	}
	return n
}

// Start launches the dispatch loop. Calling it more than once has no effect.
// Handlers receive a context carrying ctx's values but not its cancellation, so an
// in-flight attempt is never interrupted.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.started.Store(true)
		s.running.Store(true)
		s.logger.Info("retry scheduler started", "poll_interval", s.pollInterval)
		go s.loop(ctx)
	})
}

// Stop asks the dispatch loop to exit and waits for it. An in-flight handler finishes first.
func (s *Scheduler) Stop() {
	s.requestStop()
	if s.started.Load() {
		<-s.done
	}
}

// StopContext is Stop bounded by ctx. If ctx expires first the loop still exits after
// its current cycle, and ctx.Err() is returned.
func (s *Scheduler) StopContext(ctx context.Context) error {
	s.requestStop()
	if !s.started.Load() {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("retry scheduler stop deadline exceeded")
		return ctx.Err()
	}
}

// IsRunning reports whether the dispatch loop is active.
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) requestStop() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		close(s.stopCh)
	})
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	defer s.running.Store(false)

	handlerCtx := context.WithoutCancel(ctx)
	for {
		if s.stopping.Load() || ctx.Err() != nil {
			s.logger.Info("retry scheduler stopped")
			return
		}
		if s.dispatchNext(handlerCtx) {
			continue
		}
		s.idle(ctx)
	}
}

// dispatchNext fires the earliest due record, if any, and reports whether it did.
func (s *Scheduler) dispatchNext(ctx context.Context) bool {
	rec, ok := s.queue.PeekDue(s.now())
	if !ok {
		return false
	}

	s.logger.Debug("processing retry", "payment_id", rec.PaymentID, "attempt", rec.AttemptNumber)
	start := time.Now()
	err := s.invoke(ctx, s.handlerFor(rec.PaymentID), rec)
	duration := time.Since(start)

	// The record is consumed even when the handler fails; a further attempt needs a new
	// ScheduleRetry call.
	s.queue.complete(rec.ID)
	s.analytics.RecordAttempt(s.HourOf(rec.ScheduledTime))

	if err != nil {
		s.logger.Error("retry handler failed",
			"payment_id", rec.PaymentID, "attempt", rec.AttemptNumber, "error", err, "duration", duration)
	} else {
		s.logger.Debug("retry handled", "payment_id", rec.PaymentID, "attempt", rec.AttemptNumber, "duration", duration)
	}
	if s.hooks.OnDispatched != nil {
		s.hooks.OnDispatched(rec, duration, err)
	}
	return true
}

func (s *Scheduler) invoke(ctx context.Context, h Handler, rec AttemptRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: handler panic: %v", shared.ErrInternal, r)
		}
	}()
	return h(ctx, rec)
}

// idle waits for the poll interval, the next due time, a new schedule or a stop request,
// whichever comes first.
func (s *Scheduler) idle(ctx context.Context) {
	wait := s.pollInterval
	if next, ok := s.queue.NextDue(); ok {
		until := next.Sub(s.now())
		if until <= 0 {
			return
		}
		if until < wait {
			wait = until
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.wake:
	case <-s.stopCh:
	case <-ctx.Done():
	}
}
