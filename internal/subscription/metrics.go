package subscription

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricTrackingActive  = "maptracker_tracking_active"
	MetricStartsTotal     = "maptracker_tracking_starts_total"
	MetricSamplesReceived = "maptracker_samples_received_total"
	MetricSamplesRejected = "maptracker_samples_rejected_total"
)

// Start result label values.
const (
	ResultStarted     = "started"
	ResultDenied      = "denied"
	ResultRevoked     = "revoked"
	ResultUnavailable = "unavailable"
)

// Metrics contains Prometheus metrics for location updates.
type Metrics struct {
	trackingActive  prometheus.Gauge
	startsTotal     *prometheus.CounterVec
	samplesReceived prometheus.Counter
	samplesRejected prometheus.Counter
}

// NewMetrics creates the subscription metrics. They are not registered; call Register.
func NewMetrics() *Metrics {
	return &Metrics{
		trackingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricTrackingActive,
			Help: "1 while location updates are requested, 0 otherwise",
		}),
		startsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricStartsTotal,
				Help: "Total number of start requests by result",
			},
			[]string{"result"},
		),
		samplesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSamplesReceived,
			Help: "Total number of samples delivered by the provider",
		}),
		samplesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSamplesRejected,
			Help: "Total number of delivered samples dropped for invalid coordinates",
		}),
	}
}

// Collectors returns all collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.trackingActive,
		m.startsTotal,
		m.samplesReceived,
		m.samplesRejected,
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

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	if s == Active {
		m.trackingActive.Set(1)
	} else {
		m.trackingActive.Set(0)
	}
}

func (m *Metrics) incStarts(result string) {
	if m == nil {
		return
	}
	m.startsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) addSamples(received, rejected int) {
	if m == nil {
		return
	}
	m.samplesReceived.Add(float64(received))
	m.samplesRejected.Add(float64(rejected))
}
