package updater

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "blocklist"
	subsystem = "updater"
)

var (
	registry prometheus.Registerer = prometheus.DefaultRegisterer
	gatherer prometheus.Gatherer   = prometheus.DefaultGatherer

	cyclesTotal         *prometheus.CounterVec
	cycleDuration       prometheus.Histogram
	lastSuccessGauge    prometheus.Gauge
	listEntriesGauge    *prometheus.GaugeVec
	reloadFailuresTotal prometheus.Counter
	statusRequestsTotal *prometheus.CounterVec
	metricsOnce         sync.Once
)

// initMetrics registers cycle metrics once per process.
func initMetrics() {
	metricsOnce.Do(func() {
		if testing.Testing() {
			// Use isolated registry in tests to avoid metric collisions
			reg := prometheus.NewRegistry()
			registry, gatherer = reg, reg
		}

		cyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycles_total",
			Help:      "Update cycles by outcome.",
		}, []string{"status"})

		cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of update cycles.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		})

		lastSuccessGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_success_timestamp",
			Help:      "Unix timestamp of the last cycle that wrote the document.",
		})

		listEntriesGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "list_entries",
			Help:      "Entries written by the last successful cycle.",
		}, []string{"kind"})

		reloadFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reload_failures_total",
			Help:      "Reload requests that did not succeed after the document was written.",
		})

		statusRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "status_requests_total",
			Help:      "Requests to the status server by route and status code.",
		}, []string{"route", "code"})

		registry.MustRegister(cyclesTotal, cycleDuration, lastSuccessGauge, listEntriesGauge, reloadFailuresTotal, statusRequestsTotal)
	})
}

func recordCycle(res Result) {
	if cyclesTotal == nil {
		return
	}
	cyclesTotal.WithLabelValues(string(res.Status)).Inc()
	cycleDuration.Observe(res.Duration.Seconds())
	if res.Status == StatusUpdated {
		lastSuccessGauge.Set(float64(res.Started.Unix()))
		listEntriesGauge.WithLabelValues("cidr").Set(float64(res.CIDREntries))
		listEntriesGauge.WithLabelValues("manual").Set(float64(res.ManualEntries))
	}
}

func incReloadFailure() {
	if reloadFailuresTotal != nil {
		reloadFailuresTotal.Inc()
	}
}
