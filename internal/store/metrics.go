package store

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricWritesTotal      = "maptracker_store_writes_total"
	MetricWriteDuration    = "maptracker_store_write_duration_seconds"
	MetricQueueDepth       = "maptracker_store_queue_depth"
	MetricRecordsWritten   = "maptracker_store_records_written_total"
	MetricLostUpdatesTotal = "maptracker_store_lost_updates_total"
)

// Status label values.
const (
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusMissing  = "missing"
	StatusConflict = "conflict"
)

// Metrics contains Prometheus metrics for the write queue.
type Metrics struct {
	writesTotal    *prometheus.CounterVec
	writeDuration  *prometheus.HistogramVec
	queueDepth     prometheus.Gauge
	recordsWritten prometheus.Counter
	lostUpdates    prometheus.Counter
}

// NewMetrics creates the store metrics. They are not registered; call Register.
func NewMetrics() *Metrics {
	return &Metrics{
		writesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricWritesTotal,
				Help: "Total number of applied store mutations by operation and status",
			},
			[]string{"op", "status"},
		),
		writeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricWriteDuration,
				Help:    "Time spent applying a store mutation in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"op"},
		),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricQueueDepth,
			Help: "Number of mutations waiting in the write queue",
		}),
		recordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRecordsWritten,
			Help: "Total number of location records inserted",
		}),
		lostUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricLostUpdatesTotal,
			Help: "Total number of updates whose target record did not exist",
		}),
	}
}

// Collectors returns all collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.writesTotal,
		m.writeDuration,
		m.queueDepth,
		m.recordsWritten,
		m.lostUpdates,
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observeWrite(op, status string, seconds float64) {
	if m == nil {
		return
	}
	m.writesTotal.WithLabelValues(op, status).Inc()
	m.writeDuration.WithLabelValues(op).Observe(seconds)
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) addRecords(n int) {
	if m == nil {
		return
	}
	m.recordsWritten.Add(float64(n))
}

func (m *Metrics) incLostUpdates() {
	if m == nil {
		return
	}
	m.lostUpdates.Inc()
}
