// Package metrics exposes application-level Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Metrics exposes counters for the financial mutation paths.
type Metrics struct {
	InvoicesGenerated prometheus.Counter
	PaymentsRecorded  *prometheus.CounterVec
	SnapshotsUpserted prometheus.Counter
	HTTPDuration      *prometheus.HistogramVec
}

// New registers the instruments on the given registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		InvoicesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lexbill_invoices_generated_total",
			Help: "Invoices generated from approved time entries.",
		}),
		PaymentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexbill_payments_recorded_total",
			Help: "Payments recorded, by method.",
		}, []string{"method"}),
		SnapshotsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lexbill_kpi_snapshots_upserted_total",
			Help: "KPI snapshots computed and upserted.",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lexbill_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	reg.MustRegister(
		m.InvoicesGenerated,
		m.PaymentsRecorded,
		m.SnapshotsUpserted,
		m.HTTPDuration,
	)
	return m
}

// NewRegistry creates the process registry with the standard collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	return reg
}

// Module provides the Prometheus registry and instruments.
var Module = fx.Module("observability.metrics",
	fx.Provide(NewRegistry),
	fx.Provide(New),
)
