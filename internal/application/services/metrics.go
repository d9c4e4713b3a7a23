package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are labelled by method, not by query key, to keep cardinality bounded
var (
	pollerTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagemarket_poller_ticks_total",
		Help: "Poll ticks by ledger method and outcome",
	}, []string{"method", "result"})

	pollerNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagemarket_poller_notifications_total",
		Help: "Values delivered to subscribers after a detected change",
	}, []string{"method"})

	pollerTransformFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagemarket_poller_transform_failures_total",
		Help: "Subscriber transforms that panicked",
	}, []string{"method"})

	pollerDroppedValues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagemarket_poller_dropped_values_total",
		Help: "Undelivered values replaced by newer ones for slow subscribers",
	}, []string{"method"})

	pollerActiveFeeds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pagemarket_poller_active_feeds",
		Help: "Query keys currently being polled",
	})

	metadataFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagemarket_metadata_fetches_total",
		Help: "Metadata lookups by result",
	}, []string{"result"})

	metadataCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagemarket_metadata_cache_hits_total",
		Help: "Metadata served from cache by tier",
	}, []string{"tier"})

	marketActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagemarket_market_actions_total",
		Help: "Marketplace action requests by action and result",
	}, []string{"action", "result"})

	feedEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagemarket_feed_evictions_total",
		Help: "Feeds released by kind (token, gallery) and reason (idle, capacity)",
	}, []string{"kind", "reason"})
)
