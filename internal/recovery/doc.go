// Package recovery is the retry-scheduling engine of the service.
//
// A Scheduler turns a failed payment into a timed AttemptRecord. Due times come from
// exactly one backoff source per call: the fixed ladder (1h, 24h, 72h, 168h) when the
// failure code is unknown to the caller, or the StrategyCatalog policy for the code
// (BaseDelayHours * 2^attempt, bounded by MaxAttempts). Due times further than an hour
// out are nudged by up to three hours onto the first reachable optimal hour.
//
// Records live in a ScheduleQueue ordered by due time, ties broken by insertion order.
// A single dispatch goroutine started with Start pops due records, invokes the handler
// registered for the payment (or the default handler) outside every lock, consumes the
// record whatever the outcome, and feeds an AnalyticsTracker that recommends the hour of
// day with the best recovery ratio.
//
//	s := recovery.NewScheduler(recovery.Config{Logger: log, DefaultHandler: processor.Handle})
//	s.Start(ctx)
//	defer s.Stop()
//
//	rec, ok, err := s.ScheduleRetry("in_123", 0, "card_declined")
//
// Dispatch is at-least-once within a process and bounded by the poll interval; pending
// state is not persisted.
package recovery
