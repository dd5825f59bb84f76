package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealer_visits",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	visitsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dealer_visits",
			Name:      "visits_opened_total",
			Help:      "Visits opened.",
		},
	)

	visitTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealer_visits",
			Name:      "visit_transitions_total",
			Help:      "Visit state transitions by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealer_visits",
			Name:      "cache_lookups_total",
			Help:      "Snapshot cache lookups by key and result.",
		},
		[]string{"key", "result"},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealer_visits",
			Name:      "sync_tasks_total",
			Help:      "Spreadsheet sync tasks by final status.",
		},
		[]string{"status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests)
		prometheus.MustRegister(visitsOpened)
		prometheus.MustRegister(visitTransitions)
		prometheus.MustRegister(cacheLookups)
		prometheus.MustRegister(syncTasks)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncVisitOpened counts a successfully opened visit.
func IncVisitOpened() {
	visitsOpened.Inc()
}

// IncVisitTransition counts a confirm/cancel attempt with its outcome.
func IncVisitTransition(action, outcome string) {
	visitTransitions.WithLabelValues(action, outcome).Inc()
}

// IncCacheLookup counts a cache hit or miss for a snapshot key.
func IncCacheLookup(key, result string) {
	cacheLookups.WithLabelValues(key, result).Inc()
}

// IncSyncTask counts a sync task reaching a terminal or retry status.
func IncSyncTask(status string) {
	syncTasks.WithLabelValues(status).Inc()
}
