package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec
	// DB
	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// Account security
	LedgerMutations    *prometheus.CounterVec
	TwoFactorResults   *prometheus.CounterVec
	SessionEvents      *prometheus.CounterVec
	ReconcileAudits    *prometheus.CounterVec
	ReconcileLastDrift prometheus.Gauge
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "accountcore",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "accountcore",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "accountcore",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "accountcore",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL)",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "accountcore",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),
		LedgerMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "accountcore",
				Subsystem: "ledger",
				Name:      "mutations_total",
				Help:      "Ledger-writing operations by kind and outcome.",
			},
			[]string{"op", "result"}, // op=adjust|set|reconcile result=ok|rejected|error
		),
		TwoFactorResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "accountcore",
				Subsystem: "twofactor",
				Name:      "verifications_total",
				Help:      "Two-factor challenges by terminal state.",
			},
			[]string{"result"},
		),
		SessionEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "accountcore",
				Subsystem: "sessions",
				Name:      "events_total",
				Help:      "Session lifecycle events.",
			},
			[]string{"event"}, // created|extended|invalidated|invalidated_all
		),
		ReconcileAudits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "accountcore",
				Subsystem: "reconcile",
				Name:      "audits_total",
				Help:      "Balance audits by result.",
			},
			[]string{"result"}, // clean|drift|fixed|error
		),
		ReconcileLastDrift: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "accountcore",
				Subsystem: "reconcile",
				Name:      "last_run_drifted_users",
				Help:      "Users with drift found by the most recent full run.",
			},
		),
	}
	reg.MustRegister(
		p.RequestsTotal, p.RequestsDuration, p.InFlight,
		p.DbQueryDuration, p.DbErrorsTotal,
		p.LedgerMutations, p.TwoFactorResults, p.SessionEvents,
		p.ReconcileAudits, p.ReconcileLastDrift,
	)

	return p
}

func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		// route template is only available after routing; best effort:
		route := ctx.FullPath()

		if route == "" {
			route = "unmatched"
		}

		method := ctx.Request.Method
		p.InFlight.WithLabelValues(method, route).Inc()
		defer p.InFlight.WithLabelValues(method, route).Dec()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		secs := time.Since(start).Seconds()

		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(secs)
	}
}

// The helpers below tolerate a nil receiver so services can run without metrics.

func (p *Prom) LedgerMutation(op, result string) {
	if p == nil {
		return
	}
	p.LedgerMutations.WithLabelValues(op, result).Inc()
}

func (p *Prom) TwoFactorResult(result string) {
	if p == nil {
		return
	}
	p.TwoFactorResults.WithLabelValues(result).Inc()
}

func (p *Prom) SessionEvent(event string) {
	if p == nil {
		return
	}
	p.SessionEvents.WithLabelValues(event).Inc()
}

func (p *Prom) ReconcileAudit(result string) {
	if p == nil {
		return
	}
	p.ReconcileAudits.WithLabelValues(result).Inc()
}

func (p *Prom) ReconcileDrifted(n int) {
	if p == nil {
		return
	}
	p.ReconcileLastDrift.Set(float64(n))
}
