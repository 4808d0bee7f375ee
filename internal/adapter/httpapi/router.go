// Package httpapi is the JSON surface of the service: health, stats, retry queue
// and analytics views, failure ingestion and the Prometheus endpoint.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"payrecovery/internal/payment"
	"payrecovery/internal/recovery"
)

// Ledger is the read side of payment.Ledger.
type Ledger interface {
	Stats() payment.Stats
	List() []payment.Payment
}

// Retries is the read side of recovery.Scheduler.
type Retries interface {
	Snapshot() []recovery.AttemptRecord
	Analytics() recovery.Analytics
	Pending() int
}

// Reporter ingests failed payments.
type Reporter interface {
	ReportFailure(ctx context.Context, r payment.FailureReport) (payment.Payment, error)
}

// Deps are the router's collaborators. Metrics may be nil.
type Deps struct {
	Ledger   Ledger
	Retries  Retries
	Reporter Reporter
	Metrics  http.Handler
	Logger   *slog.Logger
	Now      func() time.Time
}

// NewRouter builds the gin engine. mode is gin.ReleaseMode or gin.DebugMode.
func NewRouter(d Deps, mode string) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	gin.SetMode(mode)

	h := &handlers{deps: d, logger: d.Logger.With("component", "http")}

	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog)

	r.GET("/health", h.health)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	api := r.Group("/api")
	api.GET("/stats", h.stats)
	api.GET("/retries", h.retries)
	api.GET("/analytics", h.analytics)
	api.POST("/failures", h.reportFailure)

	return r
}

// NewServer wraps the router in an http.Server with conservative timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
