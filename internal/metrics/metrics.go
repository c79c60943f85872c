// Package metrics holds the process-wide Prometheus collectors shared by
// the Live-State Cache, the durable queues, and the Webhook Deliverer.
// Grounded on the pack's prometheus/client_golang usage, wired here
// since the teacher carries no metrics surface of its own.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aircraftdata_livecache_hits_total",
		Help: "Live-state cache lookups served from memory.",
	})
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aircraftdata_livecache_misses_total",
		Help: "Live-state cache lookups that missed or expired.",
	})
	CacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aircraftdata_livecache_evictions_total",
		Help: "Entries evicted from the live-state cache to respect max_entries.",
	})
	CacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aircraftdata_livecache_size",
		Help: "Current number of entries held in the live-state cache.",
	})

	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aircraftdata_queue_depth",
		Help: "Depth of a durable queue lane.",
	}, []string{"queue", "lane"})

	WebhookDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aircraftdata_webhook_deliveries_total",
		Help: "Webhook delivery attempts by outcome.",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(CacheHits, CacheMisses, CacheEvictions, CacheSize, QueueDepth, WebhookDeliveries)
}
