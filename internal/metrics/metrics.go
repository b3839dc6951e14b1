// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersPlaced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clob",
		Name:      "orders_placed_total",
		Help:      "Orders accepted for matching, by side.",
	}, []string{"side"})

	Fills = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "clob",
		Name:      "fills_total",
		Help:      "Settled fills.",
	})

	FilledQuantity = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "clob",
		Name:      "filled_quantity_total",
		Help:      "Base quantity exchanged across all settled fills.",
	})

	SettlementFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "clob",
		Name:      "settlement_failures_total",
		Help:      "Fills whose settlement was rejected by the ledger.",
	})

	Cancellations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "clob",
		Name:      "cancellations_total",
		Help:      "Orders cancelled by their owner.",
	})

	Evictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "clob",
		Name:      "evictions_total",
		Help:      "Resting orders cancelled because their owner could not settle a fill.",
	})

	Errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clob",
		Name:      "errors_total",
		Help:      "Failed operations, by operation and error class.",
	}, []string{"op", "class"})

	MatchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "clob",
		Name:      "match_duration_seconds",
		Help:      "Time spent inside the market critical section per placement.",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
	})
)

func init() {
	prometheus.MustRegister(
		OrdersPlaced,
		Fills,
		FilledQuantity,
		SettlementFailures,
		Cancellations,
		Evictions,
		Errors,
		MatchLatency,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
