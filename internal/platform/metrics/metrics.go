// Package metrics exposes retry and payment counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"payrecovery/internal/payment"
	"payrecovery/internal/recovery"
)

const namespace = "payrecovery"

// Recorder owns the service's collectors.
type Recorder struct {
	scheduled        *prometheus.CounterVec
	exhausted        prometheus.Counter
	dispatched       *prometheus.CounterVec
	dispatchDuration prometheus.Histogram
	pending          prometheus.Gauge
	payments         *prometheus.CounterVec
	archived         prometheus.Counter
}

var _ payment.OutcomeRecorder = (*Recorder)(nil)

// New creates a Recorder and registers its collectors with registerer, if not nil.
func New(registerer prometheus.Registerer) *Recorder {
	r := &Recorder{
		scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_scheduled_total",
			Help:      "Number of retry attempts scheduled, by failure policy",
		}, []string{"policy"}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_exhausted_total",
			Help:      "Number of payments whose retry policy ran out",
		}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Number of due retries handed to a handler, by result",
		}, []string{"result"}),
		dispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of retry handler invocations",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_retries",
			Help:      "Number of retries waiting in the schedule queue",
		}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Number of payments reaching a state, by outcome",
		}, []string{"outcome"}),
		archived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archived_records_total",
			Help:      "Number of completed retry records written to the archive",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			r.scheduled,
			r.exhausted,
			r.dispatched,
			r.dispatchDuration,
			r.pending,
			r.payments,
			r.archived,
		)
	}
	return r
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the exposition format for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Hooks returns scheduler hooks feeding this Recorder. The policy label is the
// catalog entry that served the code, so unknown codes share the default series.
// A nil catalog means recovery.DefaultCatalog.
func (r *Recorder) Hooks(catalog *recovery.StrategyCatalog) recovery.Hooks {
	if catalog == nil {
		catalog = recovery.DefaultCatalog()
	}
	return recovery.Hooks{
		OnScheduled: func(rec recovery.AttemptRecord) {
			policy := "ladder"
			if rec.FailureCode != "" {
				policy = catalog.Strategy(rec.FailureCode).FailureCode
			}
			r.scheduled.WithLabelValues(policy).Inc()
		},
		OnExhausted: func(string, int, string) {
			r.exhausted.Inc()
		},
		OnDispatched: func(_ recovery.AttemptRecord, d time.Duration, err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			r.dispatched.WithLabelValues(result).Inc()
			r.dispatchDuration.Observe(d.Seconds())
		},
	}
}

func (r *Recorder) PaymentOutcome(status payment.Status) {
	r.payments.WithLabelValues(string(status)).Inc()
}

func (r *Recorder) SetPending(n int) {
	r.pending.Set(float64(n))
}

func (r *Recorder) AddArchived(n int) {
	r.archived.Add(float64(n))
}
