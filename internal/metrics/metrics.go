// Package metrics exposes Prometheus collectors for the enrichment pipeline's
// external calls. Run- and stage-level metrics live in the progress sinks.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal            *prometheus.CounterVec
	fetchRetriesTotal       prometheus.Counter
	classifierRequestsTotal *prometheus.CounterVec
	classifierFailuresTotal *prometheus.CounterVec
	keyRotationsTotal       prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newswatch_fetches_total",
				Help: "Page fetch outcomes, labeled by result (ok, absent, exhausted).",
			},
			[]string{"result"},
		)
		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "newswatch_fetch_retries_total",
				Help: "Total page fetch retry attempts.",
			},
		)
		classifierRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newswatch_classifier_requests_total",
				Help: "Classifier invocations, labeled by template kind.",
			},
			[]string{"kind"},
		)
		classifierFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newswatch_classifier_failures_total",
				Help: "Classifier failures, labeled by template kind and class.",
			},
			[]string{"kind", "class"},
		)
		keyRotationsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "newswatch_classifier_key_rotations_total",
				Help: "One-way switches to the secondary classifier credential.",
			},
		)
	})
}

// RecordFetch increments the fetch outcome counter.
func RecordFetch(result string) {
	if fetchesTotal == nil {
		return
	}
	fetchesTotal.WithLabelValues(result).Inc()
}

// RecordFetchRetry increments the retry counter.
func RecordFetchRetry() {
	if fetchRetriesTotal == nil {
		return
	}
	fetchRetriesTotal.Inc()
}

// RecordClassifierRequest increments the invocation counter for a template
// kind ("primary" or "secondary").
func RecordClassifierRequest(kind string) {
	if classifierRequestsTotal == nil {
		return
	}
	classifierRequestsTotal.WithLabelValues(kind).Inc()
}

// RecordClassifierFailure increments the failure counter; class is
// "transient" or "quota".
func RecordClassifierFailure(kind, class string) {
	if classifierFailuresTotal == nil {
		return
	}
	classifierFailuresTotal.WithLabelValues(kind, class).Inc()
}

// RecordKeyRotation increments the credential rotation counter.
func RecordKeyRotation() {
	if keyRotationsTotal == nil {
		return
	}
	keyRotationsTotal.Inc()
}

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
