package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SearchesTotal counts sanctions searches by source and envelope status.
var SearchesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sanctionscan_searches_total",
		Help: "Total number of sanctions searches by source and result status",
	},
	[]string{"source", "status"},
)

// SearchLatency records latency distribution for a single-source search,
// including any inline list refresh it triggered.
var SearchLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "sanctionscan_search_latency_seconds",
		Help:    "Latency in seconds for a single-source sanctions search",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	},
	[]string{"source"},
)

// ListRefreshes counts list download attempts by source and outcome.
var ListRefreshes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sanctionscan_list_refreshes_total",
		Help: "Total number of sanctions list refresh attempts by outcome",
	},
	[]string{"source", "outcome"},
)

// CachedEntities reports the number of list entities currently cached per source.
var CachedEntities = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "sanctionscan_cached_entities",
		Help: "Number of sanctions list entities held in the cache per source",
	},
	[]string{"source"},
)

// StaleServes counts searches answered from a cache entry past its TTL
// because a refresh failed.
var StaleServes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sanctionscan_stale_serves_total",
		Help: "Total number of searches served from stale cached list data",
	},
	[]string{"source"},
)

func init() {
	prometheus.MustRegister(SearchesTotal, SearchLatency)
	prometheus.MustRegister(ListRefreshes, CachedEntities, StaleServes)
}
