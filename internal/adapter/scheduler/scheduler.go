package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc - функция обслуживающей задачи.
type JobFunc func(ctx context.Context) error

// OverlapPolicy определяет, что делать, если предыдущий запуск задачи еще не закончился.
type OverlapPolicy int

const (
	// SkipIfRunning пропускает запуск (по умолчанию: чистка и метрики не должны копиться).
	SkipIfRunning OverlapPolicy = iota
	// DelayIfRunning ждет завершения предыдущего запуска.
	DelayIfRunning
)

// JobOptions содержит опции задачи.
type JobOptions struct {
	Name          string
	Timeout       time.Duration
	OverlapPolicy OverlapPolicy
}

// JobHooks содержит необязательные хуки для наблюдаемости.
type JobHooks struct {
	OnJobStart  func(jobName string)
	OnJobFinish func(jobName string, duration time.Duration, err error)
}

// Config содержит конфигурацию планировщика.
type Config struct {
	Logger   *slog.Logger
	JobHooks JobHooks
}

type job struct {
	fn      JobFunc
	options JobOptions
	running sync.Mutex
}

// Scheduler запускает обслуживающие задачи: по cron-расписанию и с фиксированным интервалом.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	hooks   JobHooks
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	tickers []func()

	mu        sync.Mutex
	started   bool
	startOnce sync.Once
	stopOnce  sync.Once
	stopped   chan struct{}
}

// cronParser принимает и 5, и 6 полей (секунды необязательны), а также дескрипторы "@hourly".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New создает планировщик. Отмена parentCtx останавливает все задачи.
func New(parentCtx context.Context, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(parentCtx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "maintenance")

	return &Scheduler{
		cron:    cron.New(cron.WithParser(cronParser), cron.WithLogger(cronLogger{logger: logger})),
		logger:  logger,
		hooks:   cfg.JobHooks,
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
}

// AddCronJob добавляет задачу по cron-расписанию, например "@hourly" или "0 */15 * * * *".
func (s *Scheduler) AddCronJob(schedule string, fn JobFunc, opts JobOptions) error {
	j := &job{fn: fn, options: opts}
	if _, err := s.cron.AddFunc(schedule, func() { s.run(j) }); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, opts.Name, err)
	}
	s.logger.Info("cron job added", "name", opts.Name, "schedule", schedule)
	return nil
}

// AddTickerJob добавляет задачу с фиксированным интервалом. Тикер запускается вместе с планировщиком.
func (s *Scheduler) AddTickerJob(interval time.Duration, fn JobFunc, opts JobOptions) error {
	if interval <= 0 {
		return fmt.Errorf("interval for job %s must be positive", opts.Name)
	}
	j := &job{fn: fn, options: opts}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("job %s added after start", opts.Name)
	}
	s.tickers = append(s.tickers, func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(j)
			case <-s.ctx.Done():
				return
			}
		}
	})
	s.logger.Info("ticker job added", "name", opts.Name, "interval", interval)
	return nil
}

// Start запускает cron и тикеры. Повторный вызов ничего не делает.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.started = true
		tickers := s.tickers
		s.mu.Unlock()

		s.cron.Start()
		for _, loop := range tickers {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				loop()
			}()
		}

		go func() {
			<-s.ctx.Done()
			s.stopOnce.Do(s.stop)
		}()
		s.logger.Info("maintenance scheduler started")
	})
}

// Stop останавливает планировщик и ждет завершения выполняющихся задач.
func (s *Scheduler) Stop() {
	s.cancel()
	s.stopOnce.Do(s.stop)
	<-s.stopped
}

// StopContext - Stop с дедлайном. Если ctx истекает раньше, возвращается ctx.Err(),
// а остановка завершается в фоне.
func (s *Scheduler) StopContext(ctx context.Context) error {
	s.cancel()
	go s.stopOnce.Do(s.stop)

	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		s.logger.Warn("maintenance stop deadline exceeded")
		return ctx.Err()
	}
}

// IsRunning возвращает true, пока планировщик не остановлен.
func (s *Scheduler) IsRunning() bool {
	return s.ctx.Err() == nil
}

func (s *Scheduler) stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	close(s.stopped)
	s.logger.Info("maintenance scheduler stopped")
}

// run выполняет задачу с учетом политики перекрытий, таймаута и восстановления после паники.
func (s *Scheduler) run(j *job) {
	name := j.options.Name
	if name == "" {
		name = "unnamed"
	}

	switch j.options.OverlapPolicy {
	case DelayIfRunning:
		j.running.Lock()
	default:
		if !j.running.TryLock() {
			s.logger.Debug("skipping job, previous run still active", "name", name)
			return
		}
	}
	defer j.running.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(name)
	}

	ctx := s.ctx
	if j.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.options.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := invoke(ctx, j.fn)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("job failed", "name", name, "error", err, "duration", duration)
	} else {
		s.logger.Debug("job completed", "name", name, "duration", duration)
	}
	if s.hooks.OnJobFinish != nil {
		s.hooks.OnJobFinish(name, duration, err)
	}
}

func invoke(ctx context.Context, fn JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// cronLogger адаптирует логгер cron к slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
