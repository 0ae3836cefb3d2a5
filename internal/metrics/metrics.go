package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

const namespace = "numrent"

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Request latency",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})

	// type: freeze, commit, refund, credit; result: ok, idempotent, error
	LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_operations_total",
		Help:      "Ledger operations by entry type and result",
	}, []string{"type", "result"})

	LedgerAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_amount_total",
		Help:      "Sum of ledger entry amounts by entry type",
	}, []string{"type"})

	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Requests to number providers",
	}, []string{"provider", "method", "result"})

	SweepOrders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_orders_total",
		Help:      "Orders handled by the expiry sweeper by outcome",
	}, []string{"outcome"})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Expiry sweeper run duration",
	})

	Signals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlement_signals_total",
		Help:      "Completion signals by source and result",
	}, []string{"source", "result"})
)

func ObserveLedger(entryType string, result string, amount decimal.Decimal) {
	LedgerOperations.WithLabelValues(entryType, result).Inc()
	if result == "ok" {
		LedgerAmount.WithLabelValues(entryType).Add(amount.InexactFloat64())
	}
}
