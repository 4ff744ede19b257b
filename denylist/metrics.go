package denylist

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "blocklist"
	subsystem = "source"
)

var (
	entriesGauge       *prometheus.GaugeVec
	lastUpdateGauge    *prometheus.GaugeVec
	fetchFailuresTotal *prometheus.CounterVec
	droppedTotal       *prometheus.CounterVec
	metricsOnce        sync.Once
)

// initMetrics initializes and registers source metrics with appropriate registry.
// Uses sync.Once to ensure single initialization across parallel tests.
func initMetrics() {
	metricsOnce.Do(func() {
		var registry prometheus.Registerer = prometheus.DefaultRegisterer

		if testing.Testing() {
			// Use isolated registry in tests to avoid metric collisions
			registry = prometheus.NewRegistry()
		}

		entriesGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "entries",
			Help:      "Number of entries loaded from each source.",
		}, []string{"name"})

		lastUpdateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_update_timestamp",
			Help:      "Unix timestamp of last successful load.",
		}, []string{"name"})

		fetchFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fetch_failures_total",
			Help:      "Total number of failed feed downloads.",
		}, []string{"name"})

		droppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dropped_lines_total",
			Help:      "Total number of malformed lines dropped.",
		}, []string{"name"})

		registry.MustRegister(entriesGauge, lastUpdateGauge, fetchFailuresTotal, droppedTotal)
	})
}

// updateEntries updates the entry count for a source.
func updateEntries(name string, count int) {
	if entriesGauge != nil {
		entriesGauge.WithLabelValues(name).Set(float64(count))
	}
}

// updateLastUpdate updates the last update timestamp for a source.
func updateLastUpdate(name string, unixTimestamp int64) {
	if lastUpdateGauge != nil {
		lastUpdateGauge.WithLabelValues(name).Set(float64(unixTimestamp))
	}
}

func incFetchFailure(name string) {
	if fetchFailuresTotal != nil {
		fetchFailuresTotal.WithLabelValues(name).Inc()
	}
}

func addDropped(name string, n int) {
	if droppedTotal != nil {
		droppedTotal.WithLabelValues(name).Add(float64(n))
	}
}
