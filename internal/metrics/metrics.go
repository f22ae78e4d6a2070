// Package metrics defines the Prometheus metrics of the ledger. They register
// with the default registry on import and are served from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "jobledger"

// PaymentsTotal counts job payment attempts.
// Label:
//   - result: OK, ALREADY_PAID, NOT_ENOUGH_BALANCE, or "rejected" for authorization and lookup failures
var PaymentsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_total",
		Help:      "Total number of job payment attempts, by result.",
	},
	[]string{"result"},
)

// PaidCentsTotal accumulates money moved from clients to contractors.
var PaidCentsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "paid_cents_total",
		Help:      "Total job price transferred, in cents.",
	},
)

// DepositsTotal counts deposit attempts.
// Label:
//   - result: OK, EXCEEDED_25_PERCENT, or "rejected"
var DepositsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deposits_total",
		Help:      "Total number of balance deposit attempts, by result.",
	},
	[]string{"result"},
)

// ReportDuration measures report aggregation plus ranking.
// Label:
//   - report: best_profession or best_clients
var ReportDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "report_duration_seconds",
		Help:      "Duration of reporting queries.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"report"},
)

// WebhookDeliveriesTotal counts webhook POSTs.
// Label:
//   - outcome: delivered or failed
var WebhookDeliveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_deliveries_total",
		Help:      "Total number of ledger event webhook deliveries, by outcome.",
	},
	[]string{"outcome"},
)
