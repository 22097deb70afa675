package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the Prometheus collectors a transport reports to. Callers
// register it against their own registry (or prometheus.DefaultRegisterer)
// once per process.
type Metrics struct {
	BytesSent          prometheus.Counter
	BytesReceived      prometheus.Counter
	TransmitWindowFull prometheus.Gauge
	CallsActive        prometheus.Gauge
	SetupDuration      prometheus.Histogram
	PingRTT            prometheus.Histogram
}

// NewMetrics constructs a fresh Metrics instance with the given constant
// labels (e.g. the app_name from config).
func NewMetrics(constLabels prometheus.Labels) *Metrics {
	return &Metrics{
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "bindrpc",
			Name:        "bytes_sent_total",
			Help:        "Total bytes sent on the transport's stream channel.",
			ConstLabels: constLabels,
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "bindrpc",
			Name:        "bytes_received_total",
			Help:        "Total bytes received on the transport's stream channel.",
			ConstLabels: constLabels,
		}),
		TransmitWindowFull: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "bindrpc",
			Name:        "transmit_window_full",
			Help:        "1 when the transmit window is full, 0 otherwise.",
			ConstLabels: constLabels,
		}),
		CallsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "bindrpc",
			Name:        "calls_active",
			Help:        "Number of calls currently registered in the call table.",
			ConstLabels: constLabels,
		}),
		SetupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "bindrpc",
			Name:        "setup_duration_seconds",
			Help:        "Time from Start() to the transport reaching Ready.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),
		PingRTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "bindrpc",
			Name:        "ping_rtt_seconds",
			Help:        "Round-trip time observed for liveness pings.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),
	}
}

// Register registers every collector in m against reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.BytesSent, m.BytesReceived, m.TransmitWindowFull, m.CallsActive, m.SetupDuration, m.PingRTT,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
