// Package metrics exposes scan instrumentation as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"netsweep/internal/scan"
)

const (
	namespace     = "netsweep"
	subsystemScan = "scan"
)

// Metrics holds the collectors for one process. It implements scan.Observer.
type Metrics struct {
	registry *prometheus.Registry

	probesTotal    prometheus.Counter
	probesInFlight prometheus.Gauge
	probeDuration  prometheus.Histogram
	liveHosts      prometheus.Counter
	detections     *prometheus.CounterVec
	panics         prometheus.Counter
	lastScan       prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		probesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "probes_total",
			Help:      "Hosts probed.",
		}),
		probesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "probes_in_flight",
			Help:      "Host probes currently running.",
		}),
		probeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "probe_duration_seconds",
			Help:      "Time spent probing one host.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 3, 10, 30, 60},
		}),
		liveHosts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "live_hosts_total",
			Help:      "Hosts detected by at least one method.",
		}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "detections_total",
			Help:      "Successful detections by method.",
		}, []string{"method"}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "probe_panics_total",
			Help:      "Probes that panicked and were dropped.",
		}),
		lastScan: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "last_completed_timestamp_seconds",
			Help:      "Unix time the last scan finished.",
		}),
	}
	m.registry.MustRegister(
		m.probesTotal,
		m.probesInFlight,
		m.probeDuration,
		m.liveHosts,
		m.detections,
		m.panics,
		m.lastScan,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ProbeStarted implements scan.Observer.
func (m *Metrics) ProbeStarted() {
	m.probesInFlight.Inc()
}

// ProbeFinished implements scan.Observer.
func (m *Metrics) ProbeFinished(outcome scan.Outcome, elapsed time.Duration) {
	m.probesInFlight.Dec()
	m.probesTotal.Inc()
	m.probeDuration.Observe(elapsed.Seconds())
	if !outcome.Live() {
		return
	}
	m.liveHosts.Inc()
	for _, method := range outcome.Methods {
		m.detections.WithLabelValues(method.String()).Inc()
	}
}

// ProbePanicked implements scan.Observer.
func (m *Metrics) ProbePanicked() {
	m.panics.Inc()
}

// ScanFinished stamps the completion time.
func (m *Metrics) ScanFinished(at time.Time) {
	m.lastScan.Set(float64(at.Unix()))
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
