// Package metrics registers the service's Prometheus collectors; they
// are exported on the health check server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TimeInQueue observes the delay between a message's arrival on the
	// pending queue and its atomic commit into the indexes.
	TimeInQueue = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backplane_message_time_in_queue_seconds",
		Help:    "Delay between message enqueue and ordered commit.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	MessagesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backplane_messages_ingested_total",
		Help: "Messages committed with a globally ordered id.",
	})

	OrderingCorrections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backplane_ordering_corrections_total",
		Help: "Message ids bumped forward to preserve total order.",
	})

	TransactionAborts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backplane_transaction_aborts_total",
		Help: "Ingestion commits aborted by a lost optimistic lock.",
	})

	PollWaiters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backplane_poll_waiters",
		Help: "Long-poll requests currently blocked on notification.",
	})
)

// RegisterQueueDepth exposes the pending queue length as a gauge,
// sampled on every scrape.
func RegisterQueueDepth(f func() float64) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "backplane_queue_depth",
		Help: "Messages awaiting ordered ingestion.",
	}, f)
}
