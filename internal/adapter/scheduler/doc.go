// Package scheduler runs the service's maintenance jobs: the retention sweep of
// completed retries on a cron schedule and gauge refreshes on a fixed interval.
//
// It is separate from the retry dispatch loop in internal/recovery; jobs here only
// read and trim that state.
//
//	s := scheduler.New(ctx, scheduler.Config{Logger: logger})
//	_ = s.AddCronJob("@hourly", scheduler.RetentionJob(retries, store, 720*time.Hour, nil, nil, logger),
//		scheduler.JobOptions{Name: "retention", Timeout: time.Minute})
//	s.Start()
//	defer s.Stop()
//
// Jobs skip a run while the previous one is still active unless DelayIfRunning is set.
// A panicking job is logged and reported through JobHooks as an error.
package scheduler
