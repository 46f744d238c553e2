// Package metrics defines the Prometheus collectors exposed at /metrics.
// Business metrics (decision outcomes, granted amounts) serve product and
// finance dashboards; technical metrics (latencies, failure kinds, webhook
// outcomes) serve engineering and on-call.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decision_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "decision_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "endpoint"})

	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decision_outcomes_total",
		Help: "Decisions made, by outcome and credit band",
	}, []string{"outcome", "band"})

	AmountGrantedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "decision_amount_granted_cents_total",
		Help: "Total cents granted across approved decisions",
	})

	RequestedAmount = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "decision_requested_amount_cents",
		Help:    "Distribution of requested amounts",
		Buckets: []float64{10000, 20000, 30000, 40000, 50000, 60000, 80000, 100000},
	})

	BankFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decision_bank_fetch_failures_total",
		Help: "Transaction history fetch failures, by error kind",
	}, []string{"kind"})

	BankFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "decision_bank_fetch_duration_seconds",
		Help:    "Time to fetch transaction history from the provider",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decision_webhook_deliveries_total",
		Help: "Webhook delivery outcomes after the retry loop",
	}, []string{"status"})

	WebhookPendingSweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "decision_webhook_retry_sweeps_total",
		Help: "Background sweeps over pending webhook deliveries",
	})
)
