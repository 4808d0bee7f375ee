package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"payrecovery/internal/adapter/archive"
	"payrecovery/internal/adapter/gateway"
	"payrecovery/internal/adapter/httpapi"
	"payrecovery/internal/adapter/notify"
	"payrecovery/internal/adapter/scheduler"
	"payrecovery/internal/config"
	"payrecovery/internal/payment"
	"payrecovery/internal/platform/logger"
	"payrecovery/internal/platform/metrics"
	"payrecovery/internal/recovery"
	"payrecovery/pkg/retry"
)

const (
	shutdownTimeout = 10 * time.Second
	pendingInterval = 15 * time.Second
)

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
	now func() time.Time
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "payrecovery",
	})
	return &App{cfg: cfg, log: log, now: time.Now}, nil
}

// components is everything Run starts and stops.
type components struct {
	ledger  *payment.Ledger
	retries *recovery.Scheduler
	service *payment.Service
	archive archive.Store
	jobs    *scheduler.Scheduler
	router  *gin.Engine
}

func (a *App) build(ctx context.Context) (*components, error) {
	registry := metrics.NewRegistry()
	recorder := metrics.New(registry)
	catalog := recovery.DefaultCatalog()
	ledger := payment.NewLedger()
	notifier := notify.NewLog(a.log)

	rate := a.cfg.Gateway.SuccessRate
	if rate == 0 {
		rate = gateway.Never
	}
	charger := gateway.NewSimulated(gateway.Options{
		SuccessRate:  rate,
		OutageRate:   a.cfg.Gateway.OutageRate,
		DeclineCodes: catalog.Codes(),
	})

	gatewayRetry := retry.DefaultConfig()
	gatewayRetry.MaxAttempts = a.cfg.Gateway.RetryAttempts

	processor := payment.NewProcessor(payment.ProcessorConfig{
		Ledger:   ledger,
		Charger:  charger,
		Notifier: notifier,
		Catalog:  catalog,
		Outcomes: recorder,
		Retry:    gatewayRetry,
		Logger:   a.log,
		Now:      a.now,
	})

	retries := recovery.NewScheduler(recovery.Config{
		Catalog:        catalog,
		OptimalHours:   a.cfg.Retry.OptimalHours,
		PollInterval:   a.cfg.Retry.PollInterval,
		Location:       a.cfg.Retry.Location,
		Now:            a.now,
		Logger:         a.log,
		DefaultHandler: processor.Handle,
		Hooks:          recorder.Hooks(catalog),
	})
	processor.SetScheduler(retries)

	service := payment.NewService(payment.ServiceConfig{
		Ledger:    ledger,
		Scheduler: retries,
		Notifier:  notifier,
		Catalog:   catalog,
		Outcomes:  recorder,
		Logger:    a.log,
		Now:       a.now,
	})

	store, err := archive.Open(ctx, a.cfg.Archive.Driver, a.cfg.Archive.Path, a.cfg.Archive.DSN, a.log)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	jobs := scheduler.New(ctx, scheduler.Config{Logger: a.log})
	retention := scheduler.RetentionJob(retries, store, a.cfg.Retention.Period, a.now, recorder.AddArchived, a.log)
	if err := jobs.AddCronJob(a.cfg.Retention.Schedule, retention, scheduler.JobOptions{
		Name:    "retention",
		Timeout: time.Minute,
	}); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("retention schedule: %w", err)
	}
	if err := jobs.AddTickerJob(pendingInterval, scheduler.PendingGaugeJob(retries.Pending, recorder.SetPending), scheduler.JobOptions{
		Name: "pending_gauge",
	}); err != nil {
		_ = store.Close()
		return nil, err
	}

	mode := gin.ReleaseMode
	if a.cfg.Env == "dev" {
		mode = gin.DebugMode
	}
	router := httpapi.NewRouter(httpapi.Deps{
		Ledger:   ledger,
		Retries:  retries,
		Reporter: service,
		Metrics:  metrics.Handler(registry),
		Logger:   a.log,
		Now:      a.now,
	}, mode)

	return &components{
		ledger:  ledger,
		retries: retries,
		service: service,
		archive: store,
		jobs:    jobs,
		router:  router,
	}, nil
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	defer func() { _ = logger.Close(a.log) }()
	a.log.Info("starting", "addr", a.cfg.HTTP.Addr, "archive", a.cfg.Archive.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := a.build(ctx)
	if err != nil {
		return err
	}

	c.retries.Start(ctx)
	c.jobs.Start()

	srv := httpapi.NewServer(a.cfg.HTTP.Addr, c.router)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.shutdown(shutdownCtx, c, srv)
	})
	return g.Wait()
}

func (a *App) shutdown(ctx context.Context, c *components, srv *http.Server) error {
	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
	}
	if err := c.jobs.StopContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("jobs: %w", err))
	}
	if err := c.retries.StopContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("retries: %w", err))
	}
	if err := c.archive.Close(); err != nil {
		errs = append(errs, fmt.Errorf("archive: %w", err))
	}
	return errors.Join(errs...)
}
